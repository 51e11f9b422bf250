package config

import (
	"encoding/json"
	"sort"
	"strings"
)

// FullConfig is the application config stored in the database (options
// table, key="configs"). These are the knobs the app changes at runtime, as
// opposed to the startup YAML. Reward constants and chain selection are
// injected from here so the engines never hard-code them.
type FullConfig struct {
	App          AppOptions      `json:"app"`
	Rewards      RewardOptions   `json:"rewards"`
	Chain        ChainOptions    `json:"chain"`
	S3Options    S3Options       `json:"s3_options"`
	AI           AIOptions       `json:"ai"`
	Templates    TemplateOptions `json:"templates"`
	BarkOptions  BarkOptions     `json:"bark_options"`
	MailOptions  MailOptions     `json:"mail_options"`
	AuthSecurity AuthSecurity    `json:"auth_security"`
}

type AppOptions struct {
	Name   string `json:"name"`
	WebURL string `json:"web_url"`
}

// RewardOptions carries the clarity-point constants and streak bonus tiers.
type RewardOptions struct {
	DailyEntryPoints   int          `json:"daily_entry_points"`
	MoodTrackingPoints int          `json:"mood_tracking_points"`
	MintBonusPoints    int          `json:"mint_bonus_points"`
	StreakTiers        []StreakTier `json:"streak_tiers"`
}

// StreakTier awards Bonus when the streak has reached MinDays. Tiers are
// kept sorted by MinDays descending; the first match wins.
type StreakTier struct {
	MinDays int `json:"min_days"`
	Bonus   int `json:"bonus"`
}

type ChainOptions struct {
	Network         string  `json:"network"` // "devnet" | "mainnet-beta"
	RPCEndpoint     string  `json:"rpc_endpoint"`
	AirdropLimitSOL float64 `json:"airdrop_limit_sol"`
}

func (c ChainOptions) IsMainnet() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.Network)), "mainnet")
}

// S3Options configures the NFT metadata store.
type S3Options struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	CustomDomain    string `json:"custom_domain"`
	PathStyleAccess bool   `json:"path_style_access"`
}

type AIOptions struct {
	Providers      []AIProvider       `json:"providers"`
	InsightModel   *AIModelAssignment `json:"insight_model,omitempty"`
	EnableInsights bool               `json:"enable_insights"`
	Language       string             `json:"language"`
}

type AIModelAssignment struct {
	ProviderID string `json:"provider_id"`
	Model      string `json:"model"`
}

type AIProvider struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"` // OpenAI | OpenAI-Compatible | Anthropic
	APIKey       string `json:"api_key"`
	Endpoint     string `json:"endpoint,omitempty"`
	DefaultModel string `json:"default_model"`
	Enabled      bool   `json:"enabled"`
}

// TemplateOptions gates journal template macro expansion.
type TemplateOptions struct {
	Macros bool `json:"macros"`
}

type BarkOptions struct {
	Enable              bool   `json:"enable"`
	Key                 string `json:"key"`
	ServerURL           string `json:"server_url"`
	EnableMintAlerts    bool   `json:"enable_mint_alerts"`
	EnableThrottleGuard bool   `json:"enable_throttle_guard"`
}

// MailOptions configures the weekly recap email. Delivery goes over SMTP
// unless a Resend key is set, in which case the Resend API takes over.
type MailOptions struct {
	Enable      bool   `json:"enable"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Pass        string `json:"pass"`
	From        string `json:"from"`
	ResendKey   string `json:"resend_key"`
	EnableRecap bool   `json:"enable_recap"`
	RecapDay    string `json:"recap_day"` // weekday name, defaults to sunday
}

type AuthSecurity struct {
	DisablePasswordLogin bool `json:"disable_password_login"`
}

// DefaultFullConfig returns the defaults the app ships with. The reward
// constants match the values the mobile client has always displayed.
func DefaultFullConfig() FullConfig {
	return FullConfig{
		App: AppOptions{
			Name:   "Clarity",
			WebURL: "http://localhost:2333",
		},
		Rewards: RewardOptions{
			DailyEntryPoints:   10,
			MoodTrackingPoints: 5,
			MintBonusPoints:    50,
			StreakTiers: []StreakTier{
				{MinDays: 30, Bonus: 100},
				{MinDays: 7, Bonus: 25},
				{MinDays: 3, Bonus: 15},
			},
		},
		Chain: ChainOptions{
			Network:         "devnet",
			AirdropLimitSOL: 2,
		},
		S3Options: S3Options{},
		AI: AIOptions{
			Providers:      []AIProvider{},
			EnableInsights: false,
			Language:       "en",
		},
		Templates: TemplateOptions{Macros: true},
		BarkOptions: BarkOptions{
			Enable:              false,
			ServerURL:           "https://api.day.app",
			EnableMintAlerts:    true,
			EnableThrottleGuard: false,
		},
		MailOptions: MailOptions{
			Enable:      false,
			Port:        587,
			EnableRecap: true,
			RecapDay:    "sunday",
		},
		AuthSecurity: AuthSecurity{DisablePasswordLogin: false},
	}
}

// UnmarshalJSON accepts both the current snake_case keys and the camelCase
// keys the mobile client's exported settings used before v2.
func (r *RewardOptions) UnmarshalJSON(data []byte) error {
	next := *r

	var raw struct {
		DailyEntryPoints   *int         `json:"daily_entry_points"`
		MoodTrackingPoints *int         `json:"mood_tracking_points"`
		MintBonusPoints    *int         `json:"mint_bonus_points"`
		StreakTiers        []StreakTier `json:"streak_tiers"`

		DailyEntry   *int `json:"dailyEntry"`
		MoodTracking *int `json:"moodTracking"`
		NFTMinting   *int `json:"nftMinting"`
		StreakBonus  *struct {
			Small  *legacyTier `json:"small"`
			Medium *legacyTier `json:"medium"`
			Large  *legacyTier `json:"large"`
		} `json:"streakBonus"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.DailyEntryPoints != nil {
		next.DailyEntryPoints = *raw.DailyEntryPoints
	} else if raw.DailyEntry != nil {
		next.DailyEntryPoints = *raw.DailyEntry
	}
	if raw.MoodTrackingPoints != nil {
		next.MoodTrackingPoints = *raw.MoodTrackingPoints
	} else if raw.MoodTracking != nil {
		next.MoodTrackingPoints = *raw.MoodTracking
	}
	if raw.MintBonusPoints != nil {
		next.MintBonusPoints = *raw.MintBonusPoints
	} else if raw.NFTMinting != nil {
		next.MintBonusPoints = *raw.NFTMinting
	}

	switch {
	case raw.StreakTiers != nil:
		next.StreakTiers = raw.StreakTiers
	case raw.StreakBonus != nil:
		tiers := make([]StreakTier, 0, 3)
		for _, lt := range []*legacyTier{raw.StreakBonus.Large, raw.StreakBonus.Medium, raw.StreakBonus.Small} {
			if lt != nil {
				tiers = append(tiers, StreakTier{MinDays: lt.MinDays, Bonus: lt.Points})
			}
		}
		if len(tiers) > 0 {
			next.StreakTiers = tiers
		}
	}

	sort.SliceStable(next.StreakTiers, func(i, j int) bool {
		return next.StreakTiers[i].MinDays > next.StreakTiers[j].MinDays
	})

	*r = next
	return nil
}

type legacyTier struct {
	MinDays int `json:"minDays"`
	Points  int `json:"points"`
}

// UnmarshalJSON maps the network aliases ("testnet", "mainnet") clients have
// sent historically onto the two canonical cluster names.
func (c *ChainOptions) UnmarshalJSON(data []byte) error {
	next := *c

	var raw struct {
		Network         string   `json:"network"`
		Cluster         string   `json:"cluster"`
		RPCEndpoint     string   `json:"rpc_endpoint"`
		Endpoint        string   `json:"endpoint"`
		AirdropLimitSOL *float64 `json:"airdrop_limit_sol"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	network := strings.ToLower(strings.TrimSpace(raw.Network))
	if network == "" {
		network = strings.ToLower(strings.TrimSpace(raw.Cluster))
	}
	switch network {
	case "":
	case "devnet", "testnet", "test":
		next.Network = "devnet"
	case "mainnet", "mainnet-beta", "production":
		next.Network = "mainnet-beta"
	default:
		next.Network = network
	}

	if v := strings.TrimSpace(raw.RPCEndpoint); v != "" {
		next.RPCEndpoint = v
	} else if v := strings.TrimSpace(raw.Endpoint); v != "" {
		next.RPCEndpoint = v
	}
	if raw.AirdropLimitSOL != nil {
		next.AirdropLimitSOL = *raw.AirdropLimitSOL
	}

	*c = next
	return nil
}
