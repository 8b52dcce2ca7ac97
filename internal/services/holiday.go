package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/us"
)

const (
	HolidayCountryChina    = "CN"
	HolidayCountryWeekdays = "NONE"
)

var countryHolidays = map[string]struct {
	name     string
	holidays []*cal.Holiday
}{
	"US": {"United States", us.Holidays},
	"GB": {"United Kingdom", gb.Holidays},
	"DE": {"Germany", de.Holidays},
	"FR": {"France", fr.Holidays},
	"JP": {"Japan", jp.Holidays},
	"AU": {"Australia", au.HolidaysNSW},
	"CA": {"Canada", ca.Holidays},
	"NL": {"Netherlands", nl.Holidays},
}

// HolidayService decides whether a scheduled report should run on a given day.
type HolidayService struct {
	calendars map[string]*cal.BusinessCalendar
}

func NewHolidayService() *HolidayService {
	s := &HolidayService{calendars: make(map[string]*cal.BusinessCalendar, len(countryHolidays))}
	for code, c := range countryHolidays {
		bc := cal.NewBusinessCalendar()
		bc.Name = c.name
		bc.AddHoliday(c.holidays...)
		s.calendars[code] = bc
	}
	return s
}

// IsWorkday reports whether t is a working day in the country. An empty country
// disables the check, NONE and unknown codes fall back to Monday-Friday.
func (s *HolidayService) IsWorkday(t time.Time, country string) bool {
	country = strings.ToUpper(strings.TrimSpace(country))
	switch country {
	case "":
		return true
	case HolidayCountryChina:
		return isWorkdayChina(t)
	case HolidayCountryWeekdays:
		return !cal.IsWeekend(t)
	}

	c, ok := s.calendars[country]
	if !ok {
		return !cal.IsWeekend(t)
	}
	return c.IsWorkday(t)
}

// SupportedCountries lists the codes accepted by IsWorkday besides "" and NONE, sorted.
func (s *HolidayService) SupportedCountries() []string {
	codes := []string{HolidayCountryChina}
	for code := range s.calendars {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// CheckCountry rejects a holiday country IsWorkday would silently treat as NONE.
func (s *HolidayService) CheckCountry(country string) error {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" || country == HolidayCountryWeekdays {
		return nil
	}
	supported := s.SupportedCountries()
	if slices.Contains(supported, country) {
		return nil
	}
	return fmt.Errorf("unsupported holiday country %q (supported: %s, NONE)", country, strings.Join(supported, ", "))
}

// isWorkdayChina honours official adjusted working days (调休) as well as holidays.
func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay())
	if holiday != nil {
		return holiday.IsWork()
	}

	weekday := t.Weekday()
	return weekday != time.Saturday && weekday != time.Sunday
}
