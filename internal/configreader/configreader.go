package configreader

import (
	"encoding"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"fknsrs.biz/p/vidscribe/internal/stringutil"
)

// Options controls where values are read from. Later sources override
// earlier ones: config file, then flags, then environment.
type Options struct {
	// EnvironmentPrefix is stripped from environment variable names before
	// they are matched against parameter names. Unprefixed names are still
	// accepted.
	EnvironmentPrefix string
}

func Read(program string, arguments, environment []string, out interface{}) error {
	return ReadWithOptions(program, arguments, environment, out, Options{})
}

func ReadWithOptions(program string, arguments, environment []string, out interface{}, opts Options) error {
	fields, err := getFields(out)
	if err != nil {
		return fmt.Errorf("configreader.Read: %w", err)
	}

	env := normaliseEnvironment(environment, opts.EnvironmentPrefix)

	if configPath, ok := findConfigPath(arguments, env, fields); ok && configPath != "" {
		if err := readFile(configPath, out); err != nil {
			return fmt.Errorf("configreader.Read: %w", err)
		}
	}

	if err := readArguments(program, arguments, fields); err != nil {
		return fmt.Errorf("configreader.Read: could not read command-line flags: %w", err)
	}

	if err := readEnvironment(env, fields); err != nil {
		return fmt.Errorf("configreader.Read: could not read environment variables: %w", err)
	}

	return nil
}

type encodingText interface {
	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

var encodingTextType = reflect.TypeOf((*encodingText)(nil)).Elem()

type field struct {
	name   string
	help   string
	goName string
	value  reflect.Value
}

func (f field) isText() bool {
	return reflect.PointerTo(f.value.Type()).Implements(encodingTextType)
}

func (f field) String() string {
	// flag.PrintDefaults calls String on a zero value
	if !f.value.IsValid() {
		return ""
	}

	if f.isText() {
		d, err := f.value.Addr().Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return ""
		}
		return string(d)
	}

	switch f.value.Kind() {
	case reflect.String:
		return f.value.String()
	case reflect.Bool:
		return strconv.FormatBool(f.value.Bool())
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(f.value.Int(), 10)
	default:
		return ""
	}
}

func (f field) set(s string) error {
	if f.isText() {
		if err := f.value.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return fmt.Errorf("configreader.field.set: %s (%s): %w", f.goName, f.name, err)
		}
		return nil
	}

	switch f.value.Kind() {
	case reflect.String:
		f.value.SetString(s)
	case reflect.Bool:
		f.value.SetBool(stringutil.LooksTrue(s))
	case reflect.Int, reflect.Int64:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("configreader.field.set: %s (%s): %w", f.goName, f.name, err)
		}
		f.value.SetInt(v)
	default:
		return fmt.Errorf("configreader.field.set: %s (%s) has unsupported type %s", f.goName, f.name, f.value.Type())
	}

	return nil
}

func getFields(v interface{}) ([]field, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("configreader.getFields: value must be a non-nil pointer; was instead %T", v)
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("configreader.getFields: value must be a pointer to a struct; was instead %T", v)
	}

	typ := rv.Type()

	var fields []field
	for i := 0; i < typ.NumField(); i++ {
		tf := typ.Field(i)
		if !tf.IsExported() {
			continue
		}

		name, help, ok := getNameAndHelpForField(tf)
		if !ok {
			continue
		}

		fields = append(fields, field{name: name, help: help, goName: tf.Name, value: rv.Field(i)})
	}

	return fields, nil
}

// normaliseEnvironment returns lower-cased variable names mapped to values.
// Prefixed names win over unprefixed ones.
func normaliseEnvironment(environment []string, prefix string) map[string]string {
	m := make(map[string]string)
	prefix = strings.ToLower(prefix)

	var prefixed [][2]string

	for _, e := range environment {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}

		k = strings.ToLower(k)

		if prefix != "" && strings.HasPrefix(k, prefix) {
			prefixed = append(prefixed, [2]string{strings.TrimPrefix(k, prefix), v})
			continue
		}

		m[k] = v
	}

	for _, e := range prefixed {
		m[e[0]] = e[1]
	}

	return m
}

func findConfigPath(arguments []string, env map[string]string, fields []field) (string, bool) {
	if s, ok := getFromArguments(arguments, "config"); ok {
		return s, true
	}

	if s, ok := env["config"]; ok {
		return s, true
	}

	for _, f := range fields {
		if f.name == "config" {
			return f.String(), true
		}
	}

	return "", false
}

func getFromArguments(arguments []string, name string) (string, bool) {
	for _, prefix := range []string{"-" + name, "--" + name} {
		for i := 0; i < len(arguments); i++ {
			if arguments[i] == prefix && i+1 < len(arguments) {
				return arguments[i+1], true
			} else if strings.HasPrefix(arguments[i], prefix+"=") {
				return strings.TrimPrefix(arguments[i], prefix+"="), true
			}
		}
	}

	return "", false
}

func readFile(filePath string, out interface{}) error {
	fd, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("readFile: could not open config file: %w", err)
	}
	defer fd.Close()

	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(fd).Decode(out); err != nil {
			return fmt.Errorf("readFile: could not read %q as yaml: %w", filePath, err)
		}
	case ".toml":
		if err := toml.NewDecoder(fd).Decode(out); err != nil {
			return fmt.Errorf("readFile: could not read %q as toml: %w", filePath, err)
		}
	default:
		return fmt.Errorf("readFile: could not determine file type for %q", filePath)
	}

	return nil
}

type fieldFlag struct{ f field }

func (v fieldFlag) String() string     { return v.f.String() }
func (v fieldFlag) Set(s string) error { return v.f.set(s) }

type boolFieldFlag struct{ fieldFlag }

func (boolFieldFlag) IsBoolFlag() bool { return true }

func readArguments(program string, arguments []string, fields []field) error {
	flagSet := flag.NewFlagSet(program, flag.ContinueOnError)

	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", program)
		flagSet.PrintDefaults()
		os.Exit(0)
	}

	for _, f := range fields {
		if !f.isText() && f.value.Kind() == reflect.Bool {
			flagSet.Var(boolFieldFlag{fieldFlag{f}}, f.name, f.help)
			continue
		}

		flagSet.Var(fieldFlag{f}, f.name, f.help)
	}

	return flagSet.Parse(arguments)
}

func readEnvironment(env map[string]string, fields []field) error {
	for _, f := range fields {
		ev, ok := env[f.name]
		if !ok {
			continue
		}

		if err := f.set(ev); err != nil {
			return fmt.Errorf("configreader.readEnvironment: %w", err)
		}
	}

	return nil
}

func getNameAndHelpForField(f reflect.StructField) (string, string, bool) {
	name := f.Tag.Get("name")
	if name == "" {
		name = stringutil.PascalToSnake(f.Name)
	}

	if name == "-" {
		return "", "", false
	}

	return name, f.Tag.Get("help"), true
}
