package manifest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/eposter/internal/core"
	"github.com/mitchellh/mapstructure"
)

const (
	// ScheduleLayout is the upstream format of start_date_time and end_date_time
	ScheduleLayout = "02-01-2006 15:04:05"
	// FetchedAtLayout is the format of the fetched_at stamp added to persisted documents
	FetchedAtLayout = "02-01-2006-15:04:05"

	fetchedDateLayout = "02-01-2006"
	fetchedTimeLayout = "15:04:05"

	// DefaultDisplayMinutes applies when a screen has no minutes_per_record
	DefaultDisplayMinutes = 5

	OriginScreen  = "screen"
	OriginBooking = "booking"
	OriginList    = "list"
)

var errUnrecognized = errors.New("unrecognized manifest document")

// rawRecord captures the field spellings seen across upstream API versions
type rawRecord struct {
	PosterID    string `mapstructure:"PosterId"`
	ID          string `mapstructure:"id"`
	EposterFile string `mapstructure:"eposter_file"`
	File        string `mapstructure:"file"`
	Title       string `mapstructure:"title"`
	Start       string `mapstructure:"start_date_time"`
	End         string `mapstructure:"end_date_time"`
}

type rawScreen struct {
	ScreenNumber     string                   `mapstructure:"screen_number"`
	MinutesPerRecord int                      `mapstructure:"minutes_per_record"`
	Records          []map[string]interface{} `mapstructure:"records"`
}

func weakDecode(input, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Normalize maps a decoded upstream document onto a manifest for deviceID.
//
// Accepted shapes are a screens document ({screens, booking_slot}), a list
// wrapped in data or eposters, a screens document nested under data, and a
// bare list. Records that cannot be decoded are dropped.
func Normalize(doc interface{}, deviceID string) (*core.Manifest, error) {
	m := &core.Manifest{
		DeviceID:       deviceID,
		DisplayMinutes: DefaultDisplayMinutes,
	}

	switch v := doc.(type) {
	case []interface{}:
		m.Records = listRecords(v)
		return m, nil
	case map[string]interface{}:
		m.FetchedAt = fetchedAt(v)
		if err := normalizeObject(v, deviceID, m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: top level is %T", errUnrecognized, doc)
	}
}

func normalizeObject(obj map[string]interface{}, deviceID string, m *core.Manifest) error {
	if _, ok := obj["screens"]; ok {
		return screensDocument(obj, deviceID, m)
	}
	if _, ok := obj["booking_slot"]; ok {
		return screensDocument(obj, deviceID, m)
	}

	switch data := obj["data"].(type) {
	case []interface{}:
		m.Records = listRecords(data)
		return nil
	case map[string]interface{}:
		return normalizeObject(data, deviceID, m)
	}

	if list, ok := obj["eposters"].([]interface{}); ok {
		m.Records = listRecords(list)
		return nil
	}

	return fmt.Errorf("%w: no screens, data or eposters", errUnrecognized)
}

func screensDocument(obj map[string]interface{}, deviceID string, m *core.Manifest) error {
	var screens []rawScreen
	if raw, ok := obj["screens"]; ok && raw != nil {
		if err := weakDecode(raw, &screens); err != nil {
			return fmt.Errorf("%w: screens: %w", errUnrecognized, err)
		}
	}

	deviceID = strings.TrimSpace(deviceID)
	for _, screen := range screens {
		if deviceID == "" || strings.TrimSpace(screen.ScreenNumber) != deviceID {
			continue
		}
		if screen.MinutesPerRecord > 0 {
			m.DisplayMinutes = screen.MinutesPerRecord
		}
		for _, item := range screen.Records {
			rec, ok := decodeRecord(item, OriginScreen)
			// screen records are only shown inside their slot
			if !ok || rec.StartAt.IsZero() || rec.EndAt.IsZero() {
				continue
			}
			m.Records = append(m.Records, rec)
		}
		break
	}

	bookings, _ := obj["booking_slot"].([]interface{})
	for _, b := range bookings {
		slot, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		details, ok := slot["paper_details"].(map[string]interface{})
		if !ok || len(details) == 0 {
			continue
		}
		if rec, ok := decodeRecord(details, OriginBooking); ok {
			m.Records = append(m.Records, rec)
		}
	}
	return nil
}

func listRecords(items []interface{}) []core.PosterRecord {
	records := make([]core.PosterRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if rec, ok := decodeRecord(obj, OriginList); ok {
			records = append(records, rec)
		}
	}
	return records
}

func decodeRecord(item map[string]interface{}, origin string) (core.PosterRecord, bool) {
	var raw rawRecord
	if err := weakDecode(item, &raw); err != nil {
		return core.PosterRecord{}, false
	}

	return core.PosterRecord{
		ID:        firstNonEmpty(raw.PosterID, raw.ID),
		SourceURL: firstNonEmpty(raw.EposterFile, raw.File),
		Title:     strings.TrimSpace(raw.Title),
		StartAt:   parseSchedule(raw.Start),
		EndAt:     parseSchedule(raw.End),
		Origin:    origin,
	}, true
}

func parseSchedule(s string) time.Time {
	t, err := time.ParseInLocation(ScheduleLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fetchedAt(obj map[string]interface{}) time.Time {
	s, _ := obj["fetched_at"].(string)
	t, err := time.ParseInLocation(FetchedAtLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// stamp records the fetch time on a document the way it is persisted
func stamp(doc interface{}, now time.Time) {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return
	}
	obj["fetched_at"] = now.Format(FetchedAtLayout)
	obj["fetched_date"] = now.Format(fetchedDateLayout)
	obj["fetched_time"] = now.Format(fetchedTimeLayout)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
