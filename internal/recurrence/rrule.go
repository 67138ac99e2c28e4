package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var (
	toRRuleFreq = map[Frequency]rrule.Frequency{
		FrequencyDaily:   rrule.DAILY,
		FrequencyWeekly:  rrule.WEEKLY,
		FrequencyMonthly: rrule.MONTHLY,
		FrequencyYearly:  rrule.YEARLY,
	}
	rruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}
)

// ParseRRule parses the RFC 5545 RRULE value (with or without the "RRULE:"
// prefix) into a Rule. Parts the engine cannot honour are rejected rather
// than ignored.
func ParseRRule(text string) (Rule, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "RRULE:")
	if text == "" {
		return Rule{}, fmt.Errorf("%w: empty RRULE", ErrInvalidRecurrenceRule)
	}

	opt, err := rrule.StrToROption(text)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidRecurrenceRule, err)
	}

	rule := Rule{Interval: opt.Interval, Count: opt.Count}
	found := false
	for freq, rf := range toRRuleFreq {
		if rf == opt.Freq {
			rule.Frequency = freq
			found = true
			break
		}
	}
	if !found {
		return Rule{}, fmt.Errorf("%w: unsupported FREQ in %q", ErrInvalidRecurrenceRule, text)
	}
	if rule.Interval == 0 && !strings.Contains(strings.ToUpper(text), "INTERVAL=") {
		rule.Interval = 1
	}
	if len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return Rule{}, fmt.Errorf("%w: unsupported BY* part in %q", ErrInvalidRecurrenceRule, text)
	}

	if !opt.Until.IsZero() {
		until := opt.Until.UTC()
		rule.Until = &until
	}
	wkst := opt.Wkst
	rule.WeekStart = fromRRuleWeekday(wkst.Day())
	for _, wd := range opt.Byweekday {
		rule.ByWeekday = append(rule.ByWeekday, WeekdayNum{Weekday: fromRRuleWeekday(wd.Day()), Ordinal: wd.N()})
	}
	rule.ByMonthDay = append(rule.ByMonthDay, opt.Bymonthday...)
	for _, m := range opt.Bymonth {
		rule.ByMonth = append(rule.ByMonth, time.Month(m))
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// RRule formats the rule as an RFC 5545 RRULE value without the prefix.
// Exceptions are not part of an RRULE and are omitted.
func (r Rule) RRule() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	opt := r.rruleOption()
	return opt.RRuleString(), nil
}

// RRuleSet builds an rrule-go set anchored at dtstart, including exception
// dates. It is used to interoperate with iCalendar tooling.
func (r Rule) RRuleSet(dtstart time.Time) (*rrule.Set, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	opt := r.rruleOption()
	opt.Dtstart = dtstart
	base, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrenceRule, err)
	}
	set := &rrule.Set{}
	set.RRule(base)
	for _, ex := range r.Exceptions {
		set.ExDate(ex.In(dtstart.Location()))
	}
	return set, nil
}

func (r Rule) rruleOption() rrule.ROption {
	opt := rrule.ROption{
		Freq:     toRRuleFreq[r.Frequency],
		Interval: r.Interval,
		Count:    r.Count,
		Wkst:     toRRuleWeekday(r.WeekStart, 0),
	}
	if r.Until != nil {
		opt.Until = r.Until.UTC()
	}
	for _, wd := range r.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, toRRuleWeekday(wd.Weekday, wd.Ordinal))
	}
	opt.Bymonthday = append(opt.Bymonthday, r.ByMonthDay...)
	for _, m := range r.ByMonth {
		opt.Bymonth = append(opt.Bymonth, int(m))
	}
	return opt
}

// rrule-go numbers weekdays from Monday = 0.
func fromRRuleWeekday(day int) time.Weekday {
	return time.Weekday((day + 1) % 7)
}

func toRRuleWeekday(day time.Weekday, ordinal int) rrule.Weekday {
	wd := rruleWeekdays[(int(day)+6)%7]
	if ordinal != 0 {
		return wd.Nth(ordinal)
	}
	return wd
}
