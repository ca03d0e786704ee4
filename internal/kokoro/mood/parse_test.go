package mood

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    SentimentRecord
		wantErr bool
	}{
		{
			name: "well formed",
			raw:  "MOOD: anxious\nSENTIMENT: 0.25\nINTENSITY: high\nKEYWORDS: work, anxious",
			want: SentimentRecord{Mood: Anxious, Score: 0.25, Intensity: High, Keywords: []string{"work", "anxious"}},
		},
		{
			name: "extra whitespace and case",
			raw:  "MOOD:    Happy  \nSENTIMENT:  0.9 \nINTENSITY: MEDIUM\nKEYWORDS:  joy , , sun  ",
			want: SentimentRecord{Mood: Happy, Score: 0.9, Intensity: Medium, Keywords: []string{"joy", "sun"}},
		},
		{
			name: "CRLF line endings",
			raw:  "MOOD: sad\r\nSENTIMENT: 0.1\r\nINTENSITY: low\r\nKEYWORDS: rain\r\n",
			want: SentimentRecord{Mood: Sad, Score: 0.1, Intensity: Low, Keywords: []string{"rain"}},
		},
		{
			name: "chatter around labelled lines is ignored",
			raw:  "Sure! Here you go.\nMOOD: tired\nnote: long day\nSENTIMENT: 0.4",
			want: SentimentRecord{Mood: Tired, Score: 0.4, Intensity: Low, Keywords: []string{}},
		},
		{
			name: "unknown mood token is kept",
			raw:  "MOOD: melancholic\nSENTIMENT: 0.3",
			want: SentimentRecord{Mood: Tag("melancholic"), Score: 0.3, Intensity: Low, Keywords: []string{}},
		},
		{
			name: "score above one is clamped",
			raw:  "MOOD: excited\nSENTIMENT: 1.7",
			want: SentimentRecord{Mood: Excited, Score: 1, Intensity: Low, Keywords: []string{}},
		},
		{
			name: "negative score is clamped",
			raw:  "MOOD: calm\nSENTIMENT: -0.2",
			want: SentimentRecord{Mood: Calm, Score: 0, Intensity: Low, Keywords: []string{}},
		},
		{
			name:    "missing sentiment",
			raw:     "MOOD: happy\nINTENSITY: low\nKEYWORDS: a",
			wantErr: true,
		},
		{
			name:    "missing mood",
			raw:     "SENTIMENT: 0.5",
			wantErr: true,
		},
		{
			name:    "non numeric score",
			raw:     "MOOD: happy\nSENTIMENT: quite positive",
			wantErr: true,
		},
		{
			name:    "NaN score",
			raw:     "MOOD: happy\nSENTIMENT: NaN",
			wantErr: true,
		},
		{
			name:    "lower-case labels do not match",
			raw:     "mood: happy\nsentiment: 0.5",
			wantErr: true,
		},
		{
			name:    "empty reply",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Fatalf("expected *ParseError, got %v", err)
				}
				if !reflect.DeepEqual(got, Fallback()) {
					t.Errorf("error result should be Fallback, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtract_FallbackOnMissingSentiment(t *testing.T) {
	got := Extract("MOOD: happy\nINTENSITY: high\nKEYWORDS: x")
	want := SentimentRecord{Mood: Neutral, Score: 0.5, Intensity: Low, Keywords: []string{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestTag_Valid(t *testing.T) {
	for _, tag := range Tags {
		if !tag.Valid() {
			t.Errorf("%q should be valid", tag)
		}
	}
	if Tag("melancholic").Valid() {
		t.Error("unknown tag reported valid")
	}
	if Tag("melancholic").Normalize() != Neutral {
		t.Error("unknown tag should normalize to neutral")
	}
}

func TestTags_ClosedSet(t *testing.T) {
	want := []Tag{"very_happy", "happy", "neutral", "sad", "very_sad", "anxious", "stressed", "calm", "excited", "tired"}
	if !reflect.DeepEqual(Tags, want) {
		t.Errorf("Tags = %v, want %v", Tags, want)
	}
	if !Tag("calm").Valid() {
		t.Error("calm should be valid")
	}
	if Tag("angry").Valid() {
		t.Error("angry is not a known tag")
	}
}

func TestSentimentRecord_Clone(t *testing.T) {
	orig := SentimentRecord{Mood: Happy, Score: 0.8, Intensity: Medium, Keywords: []string{"a"}}
	cp := orig.Clone()
	cp.Keywords[0] = "b"
	if orig.Keywords[0] != "a" {
		t.Error("Clone shares keyword storage")
	}
}
