package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogQueries(t *testing.T) {
	for _, tc := range []struct {
		in    string
		out   LogQueries
		str   string
		isErr bool
	}{
		{"", LogQueries{}, "none", false},
		{"none", LogQueries{}, "none", false},
		{"all", LogQueries{Enabled: true}, "all", false},
		{">100ms", LogQueries{Enabled: true, SlowerThan: 100 * time.Millisecond}, ">100ms", false},
		{">", LogQueries{}, "", true},
		{"sometimes", LogQueries{}, "", true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			a := assert.New(t)

			var l LogQueries
			err := l.UnmarshalText([]byte(tc.in))
			if tc.isErr {
				a.Error(err)
				return
			}

			a.NoError(err)
			a.Equal(tc.out, l)
			a.Equal(tc.str, l.String())
		})
	}
}

func TestLevelList(t *testing.T) {
	a := assert.New(t)

	var l LevelList
	a.NoError(l.UnmarshalText([]byte("debug, trace")))
	a.Equal(LevelList{logrus.DebugLevel, logrus.TraceLevel}, l)

	d, err := l.MarshalText()
	a.NoError(err)
	a.Equal("debug,trace", string(d))

	a.NoError(l.UnmarshalText([]byte("-")))
	a.Len(l, 0)

	a.Error(l.UnmarshalText([]byte("loud")))
}

func TestDuration(t *testing.T) {
	a := assert.New(t)

	var d Duration
	a.NoError(d.UnmarshalText([]byte("1h30m")))
	a.Equal(90*time.Minute, d.Std())
	a.Equal("1h30m0s", d.String())

	a.NoError(d.UnmarshalText([]byte("0")))
	a.Equal(time.Duration(0), d.Std())

	a.Error(d.UnmarshalText([]byte("soon")))
}

func TestDataFile(t *testing.T) {
	a := assert.New(t)

	c := Config{ApplicationDataPath: filepath.Join("var", "data")}

	a.Equal(filepath.Join("var", "data", "videos", "3", "audio.wav"), c.DataFile("videos", "3", "audio.wav"))
	a.Equal("videos/3/audio.wav", c.RelativeDataFile("videos", "3", "audio.wav"))
	a.Equal(filepath.Join("var", "data", "videos", "3", "audio.wav"), c.ResolveDataFile("videos/3/audio.wav"))
}
