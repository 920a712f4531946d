package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixID is a 6-byte identifier stored in MongoDB as BinData with custom
// subtype 0x80 and rendered as 10 characters of Crockford Base32.
type SixID [6]byte

// sixIDSubtype is the BSON binary subtype used for SixID values.
const sixIDSubtype = 0x80

// NewSixID creates a new random SixID.
func NewSixID() SixID {
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// fallback to zeros if random fails
		for i := range id {
			id[i] = 0
		}
	}
	return id
}

// Crockford Base32 alphabet (uppercase, no I/L/O/U).
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeMap map[byte]byte

func init() {
	crockfordDecodeMap = make(map[byte]byte, 40)
	for i := range crockfordAlphabet {
		crockfordDecodeMap[crockfordAlphabet[i]] = byte(i)
	}
	lower := strings.ToLower(crockfordAlphabet)
	for i := range lower {
		if i >= 10 { // digits have no lowercase variant
			crockfordDecodeMap[lower[i]] = byte(i)
		}
	}
	// Commonly confused characters
	crockfordDecodeMap['o'] = crockfordDecodeMap['O']
	crockfordDecodeMap['i'] = crockfordDecodeMap['1']
	crockfordDecodeMap['l'] = crockfordDecodeMap['1']
}

// String returns the Crockford Base32 (uppercase) representation of the ID.
func (u SixID) String() string {
	// 6 bytes = 48 bits = 10 Base32 characters
	result := make([]byte, 0, 10)
	var bits, offset uint
	for i := 0; i < 6; i++ {
		bits |= uint(u[i]) << offset
		offset += 8
		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}
	return string(result)
}

// ParseSixID parses the Crockford Base32 representation back into a SixID.
// Hyphens and spaces are tolerated; the empty string parses to the zero ID.
func ParseSixID(s string) (SixID, error) {
	if s == "" {
		return SixID{}, nil
	}
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != 10 {
		return SixID{}, errors.New("invalid SixID: string length must be 10")
	}

	var id SixID
	var bits uint64
	var offset uint
	byteIndex := 0
	for i := 0; i < 10; i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return SixID{}, errors.New("invalid character in SixID")
		}
		bits |= uint64(val) << offset
		offset += 5
		for offset >= 8 && byteIndex < 6 {
			id[byteIndex] = byte(bits & 0xFF)
			byteIndex++
			bits >>= 8
			offset -= 8
		}
	}
	if byteIndex != 6 {
		return SixID{}, errors.New("invalid SixID: could not decode 6 bytes")
	}
	return id, nil
}

// IsZero reports whether the ID is the zero value.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.TypeBinary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bson.TypeNull:
		*u = SixID{}
		return nil
	case bson.TypeBinary:
		subtype, bin, _, ok := bsoncore.ReadBinary(data)
		if !ok {
			return errors.New("invalid BSON binary data for SixID")
		}
		if subtype != sixIDSubtype || len(bin) != 6 {
			*u = SixID{}
			return errors.New("invalid BSON binary for SixID: incorrect subtype or length")
		}
		copy((*u)[:], bin)
		return nil
	default:
		*u = SixID{}
		return errors.New("invalid BSON type for SixID: expected binary")
	}
}

// MarshalJSON renders the ID as a Crockford Base32 JSON string.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON parses the ID from a Crockford Base32 JSON string.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Less reports whether u sorts before v byte-wise. Used to normalize
// unordered participant pairs before storage.
func (u SixID) Less(v SixID) bool {
	for i := 0; i < 6; i++ {
		if u[i] != v[i] {
			return u[i] < v[i]
		}
	}
	return false
}
