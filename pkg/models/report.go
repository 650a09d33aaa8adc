package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Top-level keys of the persisted report.
const (
	KeyStartedTime  = "Started Time"
	KeyLastUpdated  = "Last Updated"
	KeyTrackedApps  = "Tracked apps"
	KeyUnnamed      = "UNKNOWN[no name]"
	KeyUnrecognized = "UNKNOWN[unrecognized ips]"
	KeyExcludedApps = "Excluded apps"
)

// Timestamp layouts used in the persisted report.
const (
	StartedTimeLayout = "2006-01-02 03:04:05 PM"
	LastUpdatedLayout = "03:04:05 PM"
)

// Report is the written view of the accumulated process/address model.
// Its JSON form is a single object whose keys keep a fixed order: the
// reserved keys first, then one entry per application in tracking order.
type Report struct {
	StartedTime  string
	LastUpdated  string
	TrackedApps  []string
	Unnamed      UnnamedAddresses
	Unrecognized *UnrecognizedConnections
	ExcludedApps []string
	Apps         []AppEntry
}

// UnnamedAddresses lists "<src> to <dst>" lines without an owning process.
type UnnamedAddresses struct {
	IPs []string `json:"ips"`
}

// UnrecognizedConnections lists raw connections with neither a process nor
// an address pair. Only present in diagnostic mode.
type UnrecognizedConnections struct {
	GotLines []string `json:"got_lines"`
}

// AppEntry holds the addresses seen for one application.
type AppEntry struct {
	Name string   `json:"-"`
	Src  []string `json:"src"`
	Dst  []string `json:"dst"`
}

// App looks up an application entry by name.
func (r *Report) App(name string) (*AppEntry, bool) {
	for i := range r.Apps {
		if r.Apps[i].Name == name {
			return &r.Apps[i], true
		}
	}
	return nil, false
}

// Encode renders the report as JSON indented with four spaces.
func (r *Report) Encode() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return nil, fmt.Errorf("indent report: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler with a stable key order.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	put := func(key string, value interface{}) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	if err := put(KeyStartedTime, r.StartedTime); err != nil {
		return nil, err
	}
	if err := put(KeyLastUpdated, r.LastUpdated); err != nil {
		return nil, err
	}
	if err := put(KeyTrackedApps, nonNil(r.TrackedApps)); err != nil {
		return nil, err
	}
	if err := put(KeyUnnamed, UnnamedAddresses{IPs: nonNil(r.Unnamed.IPs)}); err != nil {
		return nil, err
	}
	if r.Unrecognized != nil {
		if err := put(KeyUnrecognized, UnrecognizedConnections{GotLines: nonNil(r.Unrecognized.GotLines)}); err != nil {
			return nil, err
		}
	}
	if len(r.ExcludedApps) > 0 {
		if err := put(KeyExcludedApps, r.ExcludedApps); err != nil {
			return nil, err
		}
	}
	for _, app := range r.Apps {
		entry := AppEntry{Src: nonNil(app.Src), Dst: nonNil(app.Dst)}
		if err := put(app.Name, entry); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping application order.
func (r *Report) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("report must be a JSON object")
	}

	*r = Report{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected report key %v", tok)
		}

		switch key {
		case KeyStartedTime:
			err = dec.Decode(&r.StartedTime)
		case KeyLastUpdated:
			err = dec.Decode(&r.LastUpdated)
		case KeyTrackedApps:
			err = dec.Decode(&r.TrackedApps)
		case KeyUnnamed:
			err = dec.Decode(&r.Unnamed)
		case KeyUnrecognized:
			r.Unrecognized = &UnrecognizedConnections{}
			err = dec.Decode(r.Unrecognized)
		case KeyExcludedApps:
			err = dec.Decode(&r.ExcludedApps)
		default:
			var entry AppEntry
			err = dec.Decode(&entry)
			entry.Name = key
			r.Apps = append(r.Apps, entry)
		}
		if err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
