package gamedetect

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shirou/gopsutil/v3/process"
)

// DetectedGame 检测到的运行中游戏进程
type DetectedGame struct {
	// 进程名 (e.g., "GTA5.exe")
	ProcessName string `json:"process_name"`
	// 进程 ID
	Pid int32 `json:"pid"`
	// 匹配到的游戏名（在已知列表或 Steam 路径中识别出来时）
	GameName string `json:"game_name,omitempty"`
	// Steam AppId（匹配到时）
	AppID uint32 `json:"app_id,omitempty"`
}

// 系统进程前缀，扫描时直接跳过
var systemPrefixes = []string{"system", "svchost", "csrss", "conhost", "runtime"}

// Scan 扫描当前运行中的游戏进程：已知游戏列表命中，
// 或进程路径位于 Steam 游戏目录（steamapps/common）下。
func Scan() ([]DetectedGame, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var games []DetectedGame
	seen := make(map[string]bool)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if lower == "explorer.exe" || hasAnyPrefix(lower, systemPrefixes) {
			continue
		}
		if seen[lower] {
			continue
		}

		if g, ok := knownGames[lower]; ok {
			seen[lower] = true
			games = append(games, DetectedGame{
				ProcessName: name,
				Pid:         p.Pid,
				GameName:    g.Name,
				AppID:       g.AppID,
			})
			continue
		}

		// Steam 启动但不在已知列表里的游戏
		exePath, err := p.Exe()
		if err != nil {
			continue
		}
		if gameName, ok := steamGameName(exePath); ok {
			seen[lower] = true
			games = append(games, DetectedGame{
				ProcessName: name,
				Pid:         p.Pid,
				GameName:    gameName,
			})
		}
	}

	sort.Slice(games, func(i, j int) bool { return games[i].ProcessName < games[j].ProcessName })
	return games, nil
}

// steamGameName 从 Steam 安装路径提取游戏名。
// 路径格式: .../steamapps/common/GameName/game.exe
func steamGameName(exePath string) (string, bool) {
	path := strings.ToLower(strings.ReplaceAll(exePath, "\\", "/"))
	const marker = "steamapps/common/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return "", false
	}
	rest := path[idx+len(marker):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 {
		return "", false
	}
	return rest[:slash], true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Notification 扫描器推送的游戏启动/退出通知
type Notification struct {
	// "game-detected" 或 "game-exited"
	Type string       `json:"type"`
	Game DetectedGame `json:"game"`
}

// Scanner 后台扫描器：定期扫描运行中的游戏，对相邻两次结果做
// 差分，把新启动/已退出的游戏推送给回调。扫描失败按指数退避
// 重试，成功后恢复正常节奏。
type Scanner struct {
	interval   time.Duration
	maxBackoff time.Duration
	notify     func(Notification)

	last map[string]DetectedGame
}

// NewScanner 创建后台扫描器
func NewScanner(interval, maxBackoff time.Duration, notify func(Notification)) *Scanner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = time.Minute
	}
	return &Scanner{
		interval:   interval,
		maxBackoff: maxBackoff,
		notify:     notify,
		last:       make(map[string]DetectedGame),
	}
}

// Run 运行扫描循环直到 ctx 取消。独立协程执行。
func (s *Scanner) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.interval
	policy.MaxInterval = s.maxBackoff
	policy.MaxElapsedTime = 0 // 永不放弃
	policy.Reset()

	wait := s.interval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		games, err := Scan()
		if err != nil {
			wait = policy.NextBackOff()
			log.Printf("进程扫描失败: %v，%s 后重试", err, wait)
			continue
		}
		policy.Reset()
		wait = s.interval

		s.diff(games)
	}
}

// diff 对比上次扫描结果，推送启动/退出通知
func (s *Scanner) diff(games []DetectedGame) {
	current := make(map[string]DetectedGame, len(games))
	for _, g := range games {
		current[g.ProcessName] = g
		if _, ok := s.last[g.ProcessName]; !ok {
			log.Printf("检测到游戏启动: %s (%s)", displayName(g), g.ProcessName)
			if s.notify != nil {
				s.notify(Notification{Type: "game-detected", Game: g})
			}
		}
	}

	for name, g := range s.last {
		if _, ok := current[name]; !ok {
			log.Printf("检测到游戏退出: %s", name)
			if s.notify != nil {
				s.notify(Notification{Type: "game-exited", Game: g})
			}
		}
	}

	s.last = current
}

func displayName(g DetectedGame) string {
	if g.GameName != "" {
		return g.GameName
	}
	return "Unknown"
}
