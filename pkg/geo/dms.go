package geo

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidDMS marks strings that are neither DMS nor plain decimals.
var ErrInvalidDMS = errors.New("invalid DMS coordinate")

var dmsPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*[°º]\s*(?:(\d+(?:\.\d+)?)\s*['′]\s*)?(?:(\d+(?:\.\d+)?)\s*(?:"|″|'')\s*)?([NSEWnsew])$`)

// DMS is a degrees/minutes/seconds coordinate component.
type DMS struct {
	Degrees    float64
	Minutes    float64
	Seconds    float64
	Hemisphere byte // N, S, E or W
}

// Decimal converts to decimal degrees. Seconds or minutes of 60 and above
// simply roll over (38°56'60.0" is 38°57'0.0"). South and west are negative.
func (d DMS) Decimal() float64 {
	dd := d.Degrees + d.Minutes/60 + d.Seconds/3600
	if d.Hemisphere == 'S' || d.Hemisphere == 'W' {
		dd = -dd
	}
	return dd
}

// ParseDMS reads `39°31'39.0"N` style strings. Plain decimal strings are
// accepted too so mixed fixture files keep working.
func ParseDMS(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidDMS
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDMS, s)
	}
	d := DMS{Hemisphere: strings.ToUpper(m[4])[0]}
	d.Degrees, _ = strconv.ParseFloat(m[1], 64)
	if m[2] != "" {
		d.Minutes, _ = strconv.ParseFloat(m[2], 64)
	}
	if m[3] != "" {
		d.Seconds, _ = strconv.ParseFloat(m[3], 64)
	}
	return d.Decimal(), nil
}
