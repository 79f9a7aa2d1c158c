package server

import (
	"fmt"
	"net"
)

// newListener 先行绑定端口，让 Start 能同步上报端口占用等错误，
// 而不是留给 Serve 协程
func newListener(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", addr, err)
	}
	return ln, nil
}
