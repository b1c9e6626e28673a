// internal/notifications/timing.go

package notifications

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Selector picks delivery channels and a send time for a notification.
type Selector struct {
	defaultDelay time.Duration
}

// NewSelector creates a timing and channel selector
func NewSelector() *Selector {
	return &Selector{defaultDelay: time.Hour}
}

// Push only goes out when the user is predicted to engage
const pushEngagementFloor = 0.6

// SelectChannels evaluates each channel independently; rules are not
// exclusive. If nothing qualifies, in-app is forced so the notification
// is never silently dropped.
func (s *Selector) SelectChannels(tpl *Template, prefs *Preferences, devices []*Device, predictedEngagement float64) ChannelList {
	var channels ChannelList

	if prefs.InAppEnabled {
		channels = append(channels, ChannelInApp)
	}

	if prefs.PushEnabled && hasMobileDevice(devices) && predictedEngagement > pushEngagementFloor {
		channels = append(channels, ChannelPush)
	}

	if prefs.EmailEnabled && (tpl.Category == CategoryApplications || tpl.Category == CategoryPayments) {
		channels = append(channels, ChannelEmail)
	}

	if prefs.SMSEnabled && (tpl.Priority == PriorityUrgent || tpl.Category == CategorySecurity) {
		channels = append(channels, ChannelSMS)
	}

	if len(channels) == 0 {
		channels = ChannelList{ChannelInApp}
	}

	return channels
}

// ScheduleAt picks the send time. Rules in order: urgent and security
// notifications go immediately; quiet hours defer to the window end;
// otherwise the best predicted window; otherwise one hour from now.
// The result is never in the past.
func (s *Selector) ScheduleAt(tpl *Template, prefs *Preferences, pattern *BehaviorPattern, now time.Time) time.Time {
	if tpl.Priority == PriorityUrgent || tpl.Category == CategorySecurity {
		return now
	}

	if prefs.QuietHours.Enabled {
		if end, inside := quietHoursEnd(prefs.QuietHours.QuietHours, now); inside {
			return end
		}
	}

	if pattern != nil && len(pattern.OptimalWindows) > 0 {
		best := pattern.OptimalWindows[0]
		for _, w := range pattern.OptimalWindows[1:] {
			if w.Score > best.Score {
				best = w
			}
		}
		if at, err := nextClockOccurrence(best.Start, now); err == nil {
			return at
		}
	}

	return now.Add(s.defaultDelay)
}

func hasMobileDevice(devices []*Device) bool {
	for _, d := range devices {
		if d.IsActive && (d.Platform == PlatformIOS || d.Platform == PlatformAndroid) {
			return true
		}
	}
	return false
}

// quietHoursEnd reports whether now falls inside the quiet window and,
// if so, the next instant the window ends. A window with start < end is
// a plain same-day interval; start > end wraps past midnight; equal
// start and end is treated as empty.
func quietHoursEnd(qh QuietHours, now time.Time) (time.Time, bool) {
	loc := now.Location()
	if qh.Timezone != "" {
		if tz, err := time.LoadLocation(qh.Timezone); err == nil {
			loc = tz
		}
	}
	local := now.In(loc)

	startMin, err := parseClock(qh.Start)
	if err != nil {
		return time.Time{}, false
	}
	endMin, err := parseClock(qh.End)
	if err != nil {
		return time.Time{}, false
	}
	if startMin == endMin {
		return time.Time{}, false
	}

	nowMin := local.Hour()*60 + local.Minute()

	var inside bool
	if startMin < endMin {
		inside = nowMin >= startMin && nowMin < endMin
	} else {
		inside = nowMin >= startMin || nowMin < endMin
	}
	if !inside {
		return time.Time{}, false
	}

	end := time.Date(local.Year(), local.Month(), local.Day(), endMin/60, endMin%60, 0, 0, loc)
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end, true
}

// nextClockOccurrence returns the next time the wall clock reads the
// given "15:04" value, advancing one day when that instant already passed.
func nextClockOccurrence(clock string, now time.Time) (time.Time, error) {
	minutes, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), minutes/60, minutes%60, 0, 0, now.Location())
	if at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// parseClock parses "15:04" into minutes since midnight
func parseClock(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour*60 + minute, nil
}
