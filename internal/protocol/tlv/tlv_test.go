package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		String(1, "Add"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestRepeatedFieldsKeepWireOrder(t *testing.T) {
	in := []Field{
		String(10, "int"),
		String(1, "Add"),
		String(10, "string"),
		String(10, "bool"),
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	got := GetFields(out, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 repeated fields, got %d", len(got))
	}
	for i, want := range []string{"int", "string", "bool"} {
		s, err := got[i].AsString()
		if err != nil || s != want {
			t.Fatalf("field[%d] got=%q err=%v want=%q", i, s, err, want)
		}
	}
	if len(GetFields(out, 77)) != 0 {
		t.Fatalf("expected no fields for absent id")
	}
}

func TestTypedAccessors(t *testing.T) {
	if v, err := U32(1, 7).AsU32(); err != nil || v != 7 {
		t.Fatalf("u32 got=%d err=%v", v, err)
	}
	if v, err := Bool(1, true).AsBool(); err != nil || !v {
		t.Fatalf("bool got=%v err=%v", v, err)
	}
	if _, err := String(1, "x").AsU32(); !errors.Is(err, ErrFieldTypeMismatch) {
		t.Fatalf("expected ErrFieldTypeMismatch, got %v", err)
	}
	bad := Field{ID: 1, Type: TypeU32, Value: []byte{1}}
	if _, err := bad.AsU32(); !errors.Is(err, ErrInvalidFieldLength) {
		t.Fatalf("expected ErrInvalidFieldLength, got %v", err)
	}
	src := []byte{1, 2}
	f := Bytes(1, src)
	src[0] = 9
	if got, _ := f.AsBytes(); got[0] != 1 {
		t.Fatalf("Bytes must copy its input")
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}
