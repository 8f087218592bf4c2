package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/cleanlog/core/log/flatten"
	"github.com/ebogdum/cleanlog/core/log/value"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func object(kv ...any) *value.Object {
	obj := value.NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		obj.Set(kv[i].(string), value.Sanitize(kv[i+1]))
	}
	return obj
}

func assertGolden(t *testing.T, name string, f *Formatter, e Event) {
	t.Helper()

	line, err := f.Format(e)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, line)
}

func TestFormatGolden(t *testing.T) {
	t.Run("echo_endpoint", func(t *testing.T) {
		assertGolden(t, "echo_endpoint", &Formatter{}, Event{
			Time:       epoch,
			Level:      Information,
			Message:    "Echo endpoint called",
			Properties: flatten.Flatten(map[string]any{"text": "hello"}),
		})
	})

	t.Run("framework_fields", func(t *testing.T) {
		type deep struct{ Flag bool }
		type nested struct {
			InnerKey int
			Deep     deep
		}
		props := object(
			"UserName", "alice",
			"MachineName", "host-1",
			"TraceId", "abc123",
			"Email", "a@x.com",
			"RequestId", "r-1",
		)
		props.Set("Nested", flatten.ConvertValue(nested{InnerKey: 1, Deep: deep{Flag: true}}))
		props.Set("Tags", flatten.ConvertValue([]any{"A", map[string]string{"Key": "v"}}))
		props.Set("Ratio", value.Float(2.5))

		assertGolden(t, "framework_fields", &Formatter{}, Event{
			Time:       time.Date(2024, 3, 5, 12, 20, 30, 123456789, time.FixedZone("plus2", 2*60*60)),
			Level:      Warning,
			Message:    "User profile accessed",
			Properties: props,
		})
	})

	t.Run("no_properties", func(t *testing.T) {
		assertGolden(t, "no_properties", &Formatter{}, Event{
			Time:       epoch,
			Level:      Error,
			Message:    "Disk full",
			Properties: flatten.Flatten(42),
		})
	})

	t.Run("redacted_production", func(t *testing.T) {
		f := &Formatter{Redactor: NewRedactor(RedactProduction, []string{"Password", "number"})}
		props := object("Username", "bob", "Password", "hunter2")
		props.Set("Card", object("Number", "4111111111111111", "Brand", "visa"))

		assertGolden(t, "redacted_production", f, Event{
			Time:       epoch,
			Level:      Information,
			Message:    "Login attempt",
			Properties: props,
		})
	})

	t.Run("escaping", func(t *testing.T) {
		assertGolden(t, "escaping", &Formatter{}, Event{
			Time:       epoch,
			Level:      Debug,
			Message:    "line1\nline2 \"quoted\" <tag>&",
			Properties: object("Path", `C:\temp`, "Unicode", "héllo", "Ctrl", "\x1b"),
		})
	})
}

func TestFormatNeverPutsFrameworkFieldsInProperties(t *testing.T) {
	props := value.NewObject()
	for _, name := range FrameworkFields {
		props.Set(name, value.String(name+"-value"))
	}
	props.Set("Custom", value.Int(1))

	line, err := (&Formatter{}).Format(Event{Time: epoch, Level: Information, Message: "m", Properties: props})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(line, &decoded))

	for _, key := range []string{TimestampKey, LevelKey, MessageKey} {
		assert.Contains(t, decoded, key)
	}
	for _, name := range FrameworkFields {
		assert.Equal(t, name+"-value", decoded[CamelCase(name)])
	}
	assert.Equal(t, map[string]any{"custom": float64(1)}, decoded[PropertiesKey])
}

func TestFormatRootKeyOrder(t *testing.T) {
	props := object("ThreadId", 12, "Zeta", "z", "SourceContext", "app.api", "TraceId", "t1")

	line, err := (&Formatter{}).Format(Event{Time: epoch, Level: Fatal, Message: "m", Properties: props})
	require.NoError(t, err)

	assert.Equal(t,
		`{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Fatal","message":"m","traceId":"t1","sourceContext":"app.api","threadId":12,"properties":{"zeta":"z"}}`+"\n",
		string(line))
}

func TestFormatEmptyMessageAndNilProperties(t *testing.T) {
	line, err := (&Formatter{}).Format(Event{Time: epoch, Level: Information})
	require.NoError(t, err)

	assert.Equal(t, `{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Information","message":""}`+"\n", string(line))
}

func TestFormatIsSingleLine(t *testing.T) {
	line, err := (&Formatter{}).Format(Event{
		Time:       epoch,
		Level:      Information,
		Message:    "multi\nline\r\nmessage",
		Properties: object("Body", "a\nb"),
	})
	require.NoError(t, err)

	assert.Equal(t, byte('\n'), line[len(line)-1])
	assert.NotContains(t, string(line[:len(line)-1]), "\n")
	assert.True(t, json.Valid(line))
}

func TestCamelCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "", expected: ""},
		{input: "UserId", expected: "userId"},
		{input: "userId", expected: "userId"},
		{input: "URL", expected: "uRL"},
		{input: "X", expected: "x"},
		{input: "_Private", expected: "_Private"},
		{input: "1Count", expected: "1Count"},
		{input: "Élan", expected: "élan"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, CamelCase(tt.input))
		})
	}
}

func TestIsFrameworkFieldIsCaseSensitive(t *testing.T) {
	assert.True(t, IsFrameworkField("TraceId"))
	assert.False(t, IsFrameworkField("traceId"))
	assert.False(t, IsFrameworkField("UserId"))
}
