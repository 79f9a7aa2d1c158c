package gamedetect

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSteamGameName Steam 安装路径里的游戏名提取
func TestSteamGameName(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{`C:\Program Files (x86)\Steam\steamapps\common\Elden Ring\eldenring.exe`, "elden ring", true},
		{`D:\SteamLibrary\steamapps\common\Hades\Hades.exe`, "hades", true},
		{"/home/user/.steam/steam/steamapps/common/Stardew Valley/StardewValley", "stardew valley", true},
		{`C:\Windows\System32\notepad.exe`, "", false},
		{`C:\Steam\steamapps\common\`, "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := steamGameName(tt.path)
		assert.Equal(t, tt.wantOK, ok, "path=%s", tt.path)
		assert.Equal(t, tt.want, got, "path=%s", tt.path)
	}
}

// TestKnownGamesCatalog 内置游戏库去重且按名称排序
func TestKnownGamesCatalog(t *testing.T) {
	games := KnownGames()
	require.NotEmpty(t, games)

	assert.True(t, sort.SliceIsSorted(games, func(i, j int) bool {
		return games[i].Name < games[j].Name
	}))

	seen := make(map[string]bool)
	for _, g := range games {
		assert.NotEmpty(t, g.Name)
		assert.NotEmpty(t, g.ProcessName)
		assert.False(t, seen[g.Name], "游戏名重复: %s", g.Name)
		seen[g.Name] = true
	}

	// 几个常见条目应当在库里
	assert.Contains(t, knownGames, "gta5.exe")
	assert.Contains(t, knownGames, "cyberpunk2077.exe")
	assert.Equal(t, uint32(271590), knownGames["gta5.exe"].AppID)
}

// TestScannerDiff 相邻两次扫描结果的差分通知
func TestScannerDiff(t *testing.T) {
	var notifications []Notification
	s := NewScanner(0, 0, func(n Notification) {
		notifications = append(notifications, n)
	})

	gta := DetectedGame{ProcessName: "GTA5.exe", Pid: 100, GameName: "Grand Theft Auto V", AppID: 271590}
	hades := DetectedGame{ProcessName: "Hades.exe", Pid: 200, GameName: "Hades"}

	// 第一次扫描：两个游戏都是新启动
	s.diff([]DetectedGame{gta, hades})
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		assert.Equal(t, "game-detected", n.Type)
	}

	// 结果不变：没有新通知
	notifications = nil
	s.diff([]DetectedGame{gta, hades})
	assert.Empty(t, notifications)

	// GTA 退出
	notifications = nil
	s.diff([]DetectedGame{hades})
	require.Len(t, notifications, 1)
	assert.Equal(t, "game-exited", notifications[0].Type)
	assert.Equal(t, "GTA5.exe", notifications[0].Game.ProcessName)

	// 全部退出
	notifications = nil
	s.diff(nil)
	require.Len(t, notifications, 1)
	assert.Equal(t, "game-exited", notifications[0].Type)
	assert.Equal(t, "Hades.exe", notifications[0].Game.ProcessName)
}

// TestScannerDefaults 非法参数退回默认节奏
func TestScannerDefaults(t *testing.T) {
	s := NewScanner(0, 0, nil)
	assert.Positive(t, s.interval)
	assert.Positive(t, s.maxBackoff)

	// 没有回调也不应崩溃
	s.diff([]DetectedGame{{ProcessName: "game.exe"}})
	s.diff(nil)
}

// TestScanDoesNotFail 扫描真实进程表不报错（结果视环境而定）
func TestScanDoesNotFail(t *testing.T) {
	games, err := Scan()
	require.NoError(t, err)
	for _, g := range games {
		assert.NotEmpty(t, g.ProcessName)
	}
}
