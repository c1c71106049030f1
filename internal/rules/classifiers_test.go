package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStandDown(t *testing.T) {
	tests := []struct {
		text string
		want StandDownKind
	}{
		{"10-22", StandDownCode},
		{"10 22 all units", StandDownCode},
		{"1022", StandDownCode},
		{"copy 1022, heading home", StandDownCode},
		{"Stand down, subject found", StandDownCode},
		{"mission cancelled", StandDownCode},
		{"can't make it", StandDownCancellation},
		{"Sorry I can’t make it tonight", StandDownCancellation},
		{"unable to make it, work", StandDownCancellation},
		{"turning back, road closed", StandDownCancellation},
		{"ETA 1022", StandDownNone},
		{"arriving 1022", StandDownNone},
		{"be there at 1022", StandDownNone},
		{"1022 am", StandDownNone},
		{"0950 - 1022 (10:22)", StandDownNone},
		{"Responding SAR7 ETA 60min", StandDownNone},
		{"ETA 10-22 min", StandDownNone},
		{"10 - 22 mins out", StandDownNone},
		{"10-22 hrs? no, 10-22 all units", StandDownCode},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStandDown(tt.text))
		})
	}
}

func TestIsStandDownCode(t *testing.T) {
	assert.True(t, IsStandDownCode("10-22"))
	assert.True(t, IsStandDownCode("can't make it"))
	assert.False(t, IsStandDownCode("on my way"))
}

func TestContainsStandDownCode(t *testing.T) {
	assert.True(t, ContainsStandDownCode("SAR-1022"))
	assert.True(t, ContainsStandDownCode("10-22"))
	assert.False(t, ContainsStandDownCode("SAR-78"))
}

func TestHasEtaIntent(t *testing.T) {
	for _, text := range []string{
		"Responding SAR7 ETA 60min",
		"omw",
		"leaving now",
		"15-20 min",
		"1430",
		"there by 7pm",
	} {
		assert.True(t, HasEtaIntent(text), text)
	}
	for _, text := range []string{
		"last seen at 1430",
		"thanks all",
		"staging area is the north lot",
	} {
		assert.False(t, HasEtaIntent(text), text)
	}
}

func TestHasNonEtaTimeContext(t *testing.T) {
	assert.True(t, HasNonEtaTimeContext("LKP 1430 near the trailhead"))
	assert.True(t, HasNonEtaTimeContext("Responding, subject last seen at 0915"))
	assert.True(t, HasNonEtaTimeContext("briefing at 1900"))

	assert.False(t, HasNonEtaTimeContext("ETA 1430"))
	assert.False(t, HasNonEtaTimeContext("left at 1300, ETA 1430"))
	assert.False(t, HasNonEtaTimeContext("on my way"))
	assert.False(t, HasNonEtaTimeContext("responding 1430"))
}

func TestLooksLikeIncidentCommandNote(t *testing.T) {
	assert.True(t, LooksLikeIncidentCommandNote("IC: staging area moved to the ranger station"))
	assert.True(t, LooksLikeIncidentCommandNote("Briefing in 10 at command post"))
	assert.False(t, LooksLikeIncidentCommandNote("Responding SAR7 ETA 60min"))
}
