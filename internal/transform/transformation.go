package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// Step is one transformation component group. Set fields render as
// comma-joined Cloudinary parameters.
type Step struct {
	Quality        string
	BitRate        string
	FetchFormat    string
	Density        int
	Page           int
	AudioFrequency string
}

// String renders the step as e.g. "br_1398k,q_auto".
func (s Step) String() string {
	var parts []string
	if s.AudioFrequency != "" {
		parts = append(parts, "af_"+s.AudioFrequency)
	}
	if s.BitRate != "" {
		parts = append(parts, "br_"+s.BitRate)
	}
	if s.Density > 0 {
		parts = append(parts, "dn_"+strconv.Itoa(s.Density))
	}
	if s.FetchFormat != "" {
		parts = append(parts, "f_"+s.FetchFormat)
	}
	if s.Page > 0 {
		parts = append(parts, "pg_"+strconv.Itoa(s.Page))
	}
	if s.Quality != "" {
		parts = append(parts, "q_"+s.Quality)
	}
	return strings.Join(parts, ",")
}

// Chain is an ordered list of steps, rendered slash separated.
type Chain []Step

func (c Chain) String() string {
	parts := make([]string, 0, len(c))
	for _, s := range c {
		if r := s.String(); r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, "/")
}

// Eager renders the chain in the form the explicit endpoint expects, with
// the output format appended as its own segment.
func (c Chain) Eager(format string) string {
	r := c.String()
	if format == "" {
		return r
	}
	if r == "" {
		return format
	}
	return r + "/" + format
}

// Quality formats an integer quality level.
func Quality(q int) string {
	return strconv.Itoa(q)
}

// BitRateKbps formats a kilobit rate, e.g. "1398k".
func BitRateKbps(kbps int) string {
	return fmt.Sprintf("%dk", kbps)
}

const (
	QualityAuto     = "auto"
	QualityAutoBest = "auto:best"
)
