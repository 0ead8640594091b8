package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// ServiceInfo はサービスメニューの価格と所要時間です
type ServiceInfo struct {
	Price    int `json:"price"`
	Duration int `json:"duration"` // minutes
}

// ServiceCatalog はサービス名からメニュー情報への対応表です。実行中に変更されません
type ServiceCatalog map[string]ServiceInfo

// Has は name がカタログにあるサービスかを返します
func (c ServiceCatalog) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Names はサービス名を昇順で返します
func (c ServiceCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DayHours は1日の営業時間です。Closed が true の場合 Open/Close は無視されます
type DayHours struct {
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// BusinessHours は曜日ごとの営業時間です
type BusinessHours map[time.Weekday]DayHours

// For は指定日の営業時間を返します。定義がない曜日は休業扱いです
func (h BusinessHours) For(day time.Weekday) DayHours {
	d, ok := h[day]
	if !ok {
		return DayHours{Closed: true}
	}
	return d
}

// Business は店舗の参照データです
type Business struct {
	Name     string
	Services ServiceCatalog
	Hours    BusinessHours
}

// DefaultBusiness は店舗の初期設定を返します
func DefaultBusiness() *Business {
	weekday := DayHours{Open: "09:00", Close: "18:00"}
	return &Business{
		Name: "Elite Barber Shop",
		Services: ServiceCatalog{
			"Classic Haircut":      {Price: 25, Duration: 30},
			"Fade Cut":             {Price: 30, Duration: 45},
			"Beard Trim":           {Price: 15, Duration: 20},
			"Mustache Trim":        {Price: 10, Duration: 15},
			"Hot Towel Shave":      {Price: 35, Duration: 40},
			"Hair Wash & Style":    {Price: 40, Duration: 45},
			"Eyebrow Trim":         {Price: 12, Duration: 15},
			"Hair Treatment":       {Price: 50, Duration: 60},
			"Full Service Package": {Price: 65, Duration: 90},
		},
		Hours: BusinessHours{
			time.Monday:    weekday,
			time.Tuesday:   weekday,
			time.Wednesday: weekday,
			time.Thursday:  weekday,
			time.Friday:    weekday,
			time.Saturday:  {Open: "09:00", Close: "17:00"},
			time.Sunday:    {Closed: true},
		},
	}
}

// businessFile は設定ファイルのJSON表現です。曜日キーは "monday" のような小文字英語です
type businessFile struct {
	Name     string              `json:"name"`
	Services ServiceCatalog      `json:"services"`
	Hours    map[string]DayHours `json:"hours"`
}

// LoadBusiness は path の設定で初期値を上書きします。path が空の場合は初期値を返します
func LoadBusiness(path string) (*Business, error) {
	b := DefaultBusiness()
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read business config %s: %w", path, err)
	}

	var f businessFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse business config %s: %w", path, err)
	}

	if f.Name != "" {
		b.Name = f.Name
	}
	if len(f.Services) > 0 {
		b.Services = f.Services
	}
	for key, hours := range f.Hours {
		day, ok := parseWeekday(key)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q in business config", key)
		}
		b.Hours[day] = hours
	}

	log.Printf("Loaded business config from %s (%d services)", path, len(b.Services))
	return b, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, true
		}
	}
	return 0, false
}
