// Package tier maps referral counts to reward tiers and milestones.
//
// Tiers are never stored: they are always recomputed from the referral count.
package tier

// Tier is one of the ordered reward levels.
type Tier string

const (
	Normal     Tier = "normal"
	OneMonth   Tier = "1month"
	ThreeMonth Tier = "3months"
	Founder    Tier = "founder"
)

const (
	OneMonthThreshold   int64 = 3
	ThreeMonthThreshold int64 = 6
	FounderThreshold    int64 = 10

	// DisplayCap is the highest referral count the UI progress shows.
	DisplayCap int64 = 10

	// Unbounded marks a tier without an upper limit.
	Unbounded int64 = -1
)

// Milestones must stay in ascending order, MilestoneReached depends on it.
var Milestones = []int64{3, 5, 6, 10, 25, 50, 100}

// Metadata describes a tier for presentation.
type Metadata struct {
	Tier   Tier   `json:"tier"`
	Label  string `json:"label"`
	Reward string `json:"reward"`
	Min    int64  `json:"min"`
	Max    int64  `json:"max"`
}

var metadata = map[Tier]Metadata{
	Normal: {
		Tier:   Normal,
		Label:  "Waitlist",
		Reward: "Early access when we launch",
		Min:    0,
		Max:    OneMonthThreshold - 1,
	},
	OneMonth: {
		Tier:   OneMonth,
		Label:  "1 Month Free",
		Reward: "One month of the paid plan, on us",
		Min:    OneMonthThreshold,
		Max:    ThreeMonthThreshold - 1,
	},
	ThreeMonth: {
		Tier:   ThreeMonth,
		Label:  "3 Months Free",
		Reward: "Three months of the paid plan, on us",
		Min:    ThreeMonthThreshold,
		Max:    FounderThreshold - 1,
	},
	Founder: {
		Tier:   Founder,
		Label:  "Founder",
		Reward: "Founder badge and lifetime discount",
		Min:    FounderThreshold,
		Max:    Unbounded,
	},
}

// Calculate returns the tier earned by count referrals.
func Calculate(count int64) Tier {
	switch {
	case count >= FounderThreshold:
		return Founder
	case count >= ThreeMonthThreshold:
		return ThreeMonth
	case count >= OneMonthThreshold:
		return OneMonth
	default:
		return Normal
	}
}

// NextThreshold returns the referral count needed for the next tier.
// The second value is false once the top tier is reached.
func NextThreshold(count int64) (int64, bool) {
	for _, threshold := range []int64{OneMonthThreshold, ThreeMonthThreshold, FounderThreshold} {
		if threshold > count {
			return threshold, true
		}
	}
	return 0, false
}

// Rank orders tiers from Normal (0) to Founder (3). Unknown tiers rank -1.
func Rank(t Tier) int {
	switch t {
	case Normal:
		return 0
	case OneMonth:
		return 1
	case ThreeMonth:
		return 2
	case Founder:
		return 3
	default:
		return -1
	}
}

// IsUpgrade reports whether moving from prev to next referrals lands on a higher tier.
func IsUpgrade(prev, next int64) bool {
	return Rank(Calculate(next)) > Rank(Calculate(prev))
}

// MilestoneReached returns the smallest milestone m with prev < m <= next.
//
// A jump across several milestones reports the earliest one crossed.
func MilestoneReached(prev, next int64) (int64, bool) {
	for _, m := range Milestones {
		if prev < m && m <= next {
			return m, true
		}
	}
	return 0, false
}

// DisplayCount caps the count shown to users at DisplayCap.
func DisplayCount(actual int64) int64 {
	if actual < 0 {
		return 0
	}
	return min(actual, DisplayCap)
}

// Info returns the presentation metadata of t.
func Info(t Tier) Metadata {
	if m, ok := metadata[t]; ok {
		return m
	}
	return metadata[Normal]
}

func (t Tier) Label() string {
	return Info(t).Label
}

func (t Tier) String() string {
	return string(t)
}

// Progress summarizes where a referral count stands.
type Progress struct {
	Tier      Tier
	Actual    int64
	Display   int64
	Next      int64
	HasNext   bool
	Remaining int64
}

func ProgressOf(count int64) Progress {
	p := Progress{
		Tier:    Calculate(count),
		Actual:  count,
		Display: DisplayCount(count),
	}

	p.Next, p.HasNext = NextThreshold(count)
	if p.HasNext {
		p.Remaining = p.Next - count
	}
	return p
}
