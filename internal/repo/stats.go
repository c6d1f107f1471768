package repo

import (
	"encoding/json"
	"fmt"
)

// StatsPeriod is the longest period the statistics page may aggregate over
type StatsPeriod int

const (
	StatsNone StatsPeriod = iota
	StatsWeek
	StatsMonth
	StatsQuarter
	StatsYear
)

var statsPeriodNames = []string{"none", "week", "month", "quarter", "year"}

// ParseStatsPeriod accepts a period name or its first letter
func ParseStatsPeriod(value string) (StatsPeriod, bool) {
	for i, name := range statsPeriodNames {
		if value == name || (len(value) == 1 && value[0] == name[0]) {
			return StatsPeriod(i), true
		}
	}
	return StatsNone, false
}

func (p StatsPeriod) String() string {
	if p < 0 || int(p) >= len(statsPeriodNames) {
		return statsPeriodNames[0]
	}
	return statsPeriodNames[p]
}

// MarshalJSON encodes the period by name
func (p StatsPeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a period name
func (p *StatsPeriod) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	period, ok := ParseStatsPeriod(name)
	if !ok {
		return fmt.Errorf("unknown stats period %q", name)
	}
	*p = period
	return nil
}
