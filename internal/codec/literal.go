package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ParseArg splits a "descriptor:literal" command-line argument and parses the
// literal.
func (r *Registry) ParseArg(raw string) (string, any, error) {
	desc, literal, ok := strings.Cut(raw, ":")
	desc = strings.TrimSpace(desc)
	if !ok || desc == "" {
		return "", nil, fmt.Errorf("%w: want descriptor:value, got %q", ErrInvalidDescriptor, raw)
	}
	v, err := r.ParseLiteral(desc, literal)
	if err != nil {
		return "", nil, err
	}
	return desc, v, nil
}

// ParseLiteral converts a text literal into a value of the descriptor's Go
// type. Builtins use their natural text form (bytes are base64, strings are
// comma separated, strmap is k=v pairs); other registered types are read as
// JSON.
func (r *Registry) ParseLiteral(descriptor, literal string) (any, error) {
	c, err := r.Lookup(descriptor)
	if err != nil {
		return nil, err
	}
	switch c.Descriptor {
	case Int:
		return strconv.Atoi(strings.TrimSpace(literal))
	case Int64:
		return strconv.ParseInt(strings.TrimSpace(literal), 10, 64)
	case Uint64:
		return strconv.ParseUint(strings.TrimSpace(literal), 10, 64)
	case Float64:
		return strconv.ParseFloat(strings.TrimSpace(literal), 64)
	case Bool:
		return strconv.ParseBool(strings.TrimSpace(literal))
	case String:
		return literal, nil
	case Bytes:
		return base64.StdEncoding.DecodeString(strings.TrimSpace(literal))
	case Strings:
		if literal == "" {
			return []string{}, nil
		}
		return strings.Split(literal, ","), nil
	case StrMap:
		out := make(map[string]string)
		if literal == "" {
			return out, nil
		}
		for _, pair := range strings.Split(literal, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("%w: strmap entry %q", ErrTypeMismatch, pair)
			}
			out[strings.TrimSpace(k)] = v
		}
		return out, nil
	}
	ptr := reflect.New(c.Type)
	if err := json.Unmarshal([]byte(literal), ptr.Interface()); err != nil {
		return nil, fmt.Errorf("codec: parse %s literal: %w", c.Descriptor, err)
	}
	return ptr.Elem().Interface(), nil
}
