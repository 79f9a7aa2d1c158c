package gamedetect

import "sort"

// KnownGame 已知游戏条目
type KnownGame struct {
	// 游戏名
	Name string `json:"name"`
	// 进程名（小写）
	ProcessName string `json:"process_name"`
	// Steam AppId，0 表示非 Steam 或未知
	AppID uint32 `json:"app_id,omitempty"`
}

// knownGames 热门游戏进程名（小写）→ 游戏信息。
// TODO: 支持从服务端下发更新的游戏列表
var knownGames = map[string]KnownGame{
	"gta5.exe":                     {Name: "Grand Theft Auto V", AppID: 271590},
	"gtav.exe":                     {Name: "Grand Theft Auto V", AppID: 271590},
	"eldenring.exe":                {Name: "Elden Ring", AppID: 1245620},
	"cyberpunk2077.exe":            {Name: "Cyberpunk 2077", AppID: 1091500},
	"witcher3.exe":                 {Name: "The Witcher 3", AppID: 292030},
	"rdr2.exe":                     {Name: "Red Dead Redemption 2", AppID: 1174180},
	"cs2.exe":                      {Name: "Counter-Strike 2", AppID: 730},
	"csgo.exe":                     {Name: "Counter-Strike 2", AppID: 730},
	"dota2.exe":                    {Name: "Dota 2", AppID: 570},
	"valorant.exe":                 {Name: "VALORANT"},
	"overwatch.exe":                {Name: "Overwatch 2"},
	"leagueclient.exe":             {Name: "League of Legends"},
	"league of legends.exe":        {Name: "League of Legends"},
	"pubg.exe":                     {Name: "PUBG: Battlegrounds", AppID: 578080},
	"tslgame.exe":                  {Name: "PUBG: Battlegrounds", AppID: 578080},
	"fortnite.exe":                 {Name: "Fortnite"},
	"apex_r5apex.exe":              {Name: "Apex Legends", AppID: 1172470},
	"r5apex.exe":                   {Name: "Apex Legends", AppID: 1172470},
	"terraria.exe":                 {Name: "Terraria", AppID: 105600},
	"rust.exe":                     {Name: "Rust", AppID: 252490},
	"baldursgate3.exe":             {Name: "Baldur's Gate 3", AppID: 1086940},
	"bg3.exe":                      {Name: "Baldur's Gate 3", AppID: 1086940},
	"hogwartslegacy.exe":           {Name: "Hogwarts Legacy", AppID: 990080},
	"sekiro.exe":                   {Name: "Sekiro: Shadows Die Twice", AppID: 814380},
	"darksoulsiii.exe":             {Name: "Dark Souls III", AppID: 374320},
	"monsterhunterworld.exe":       {Name: "Monster Hunter: World", AppID: 582010},
	"monsterhunterwilds.exe":       {Name: "Monster Hunter Wilds", AppID: 2246340},
	"fallout4.exe":                 {Name: "Fallout 4", AppID: 377160},
	"starfield.exe":                {Name: "Starfield", AppID: 1716740},
	"palworld.exe":                 {Name: "Palworld", AppID: 1623730},
	"lethal company.exe":           {Name: "Lethal Company", AppID: 1966720},
	"satisfactory.exe":             {Name: "Satisfactory", AppID: 526870},
	"helldivers2.exe":              {Name: "Helldivers 2", AppID: 553850},
	"arrowhead_hd2.exe":            {Name: "Helldivers 2", AppID: 553850},
	"doom eternal.exe":             {Name: "DOOM Eternal", AppID: 782330},
	"forzahorizon5.exe":            {Name: "Forza Horizon 5", AppID: 1551360},
	"dyinglight.exe":               {Name: "Dying Light", AppID: 239140},
	"dyinglight2.exe":              {Name: "Dying Light 2", AppID: 534380},
	"halo infinite.exe":            {Name: "Halo Infinite", AppID: 1240440},
	"destiny2.exe":                 {Name: "Destiny 2", AppID: 1085660},
	"bf1.exe":                      {Name: "Battlefield 1", AppID: 1238840},
	"bf2042.exe":                   {Name: "Battlefield 2042", AppID: 1517290},
	"nms.exe":                      {Name: "No Man's Sky", AppID: 275850},
	"b1-wukong-win64-shipping.exe": {Name: "Black Myth: Wukong", AppID: 2358720},
	"rimworldwin64.exe":            {Name: "RimWorld", AppID: 294100},
	"factorio.exe":                 {Name: "Factorio", AppID: 427520},
	"subnautica.exe":               {Name: "Subnautica", AppID: 264710},
	"totalwarhammer3.exe":          {Name: "Total War: Warhammer III", AppID: 1142710},
	"civilization vi.exe":          {Name: "Civilization VI", AppID: 289070},
	"stellaris.exe":                {Name: "Stellaris", AppID: 281990},
	"cities2.exe":                  {Name: "Cities: Skylines II", AppID: 949230},
	"stardewvalley.exe":            {Name: "Stardew Valley", AppID: 413150},
	"valheim.exe":                  {Name: "Valheim", AppID: 892970},
	"phasmophobia.exe":             {Name: "Phasmophobia", AppID: 739630},
	"among us.exe":                 {Name: "Among Us", AppID: 945360},
	"deeprock galactic.exe":        {Name: "Deep Rock Galactic", AppID: 548430},
	"slay the spire.exe":           {Name: "Slay the Spire", AppID: 646570},
	"hades.exe":                    {Name: "Hades", AppID: 1145360},
	"deadcells.exe":                {Name: "Dead Cells", AppID: 588650},
	"hollowknight.exe":             {Name: "Hollow Knight", AppID: 367520},
	"ori.exe":                      {Name: "Ori and the Blind Forest", AppID: 261570},
	"celeste.exe":                  {Name: "Celeste", AppID: 504230},
	"cuphead.exe":                  {Name: "Cuphead", AppID: 268910},
}

// KnownGames 返回去重后的已知游戏列表，按游戏名排序，
// 供前端展示支持的游戏。
func KnownGames() []KnownGame {
	seen := make(map[string]bool, len(knownGames))
	games := make([]KnownGame, 0, len(knownGames))
	for process, g := range knownGames {
		if seen[g.Name] {
			continue
		}
		seen[g.Name] = true
		g.ProcessName = process
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games
}
