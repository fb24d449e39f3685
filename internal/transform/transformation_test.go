package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepString(t *testing.T) {
	tests := []struct {
		name     string
		step     Step
		expected string
	}{
		{name: "empty", step: Step{}, expected: ""},
		{name: "quality", step: Step{Quality: Quality(45)}, expected: "q_45"},
		{name: "bitrate", step: Step{BitRate: BitRateKbps(1398), Quality: QualityAuto}, expected: "br_1398k,q_auto"},
		{name: "page and density", step: Step{Density: 150, Page: 2}, expected: "dn_150,pg_2"},
		{name: "audio", step: Step{AudioFrequency: "44100", Quality: QualityAuto}, expected: "af_44100,q_auto"},
		{name: "fetch format", step: Step{FetchFormat: "webp"}, expected: "f_webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.step.String())
		})
	}
}

func TestChain(t *testing.T) {
	chain := Chain{{Density: 150}, {}, {Page: 3}, {Quality: QualityAuto}}
	assert.Equal(t, "dn_150/pg_3/q_auto", chain.String())

	eager := Chain{{BitRate: "800k", Quality: QualityAuto}}
	assert.Equal(t, "br_800k,q_auto/mp4", eager.Eager("mp4"))
	assert.Equal(t, "br_800k,q_auto", eager.Eager(""))
	assert.Equal(t, "mp4", Chain{}.Eager("mp4"))
}
