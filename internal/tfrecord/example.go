package tfrecord

import (
	"fmt"
	"review-prep/internal/core/types"

	"google.golang.org/protobuf/encoding/protowire"
)

// Feature names of the written tf.train.Example records.
const (
	InputIDsFeature   = "input_ids"
	InputMaskFeature  = "input_mask"
	SegmentIDsFeature = "segment_ids"
	LabelIDsFeature   = "label_ids"
)

// Field numbers from tensorflow/core/example/{example,feature}.proto.
const (
	exampleFeaturesField  = 1
	featuresFeatureField  = 1
	mapKeyField           = 1
	mapValueField         = 2
	featureInt64ListField = 3
	int64ListValueField   = 1
)

// EncodeExample serializes the feature as a tf.train.Example with four
// int64_list features, in a fixed field order.
func EncodeExample(feature types.EncodedFeature) []byte {
	var features []byte
	features = appendInt64Feature(features, InputIDsFeature, feature.InputIDs)
	features = appendInt64Feature(features, InputMaskFeature, feature.InputMask)
	features = appendInt64Feature(features, SegmentIDsFeature, feature.SegmentIDs)
	features = appendInt64Feature(features, LabelIDsFeature, []int64{feature.LabelID})

	var example []byte
	example = protowire.AppendTag(example, exampleFeaturesField, protowire.BytesType)
	example = protowire.AppendBytes(example, features)
	return example
}

func appendInt64Feature(b []byte, name string, values []int64) []byte {
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendVarint(packed, uint64(v))
	}

	var list []byte
	list = protowire.AppendTag(list, int64ListValueField, protowire.BytesType)
	list = protowire.AppendBytes(list, packed)

	var feature []byte
	feature = protowire.AppendTag(feature, featureInt64ListField, protowire.BytesType)
	feature = protowire.AppendBytes(feature, list)

	var entry []byte
	entry = protowire.AppendTag(entry, mapKeyField, protowire.BytesType)
	entry = protowire.AppendString(entry, name)
	entry = protowire.AppendTag(entry, mapValueField, protowire.BytesType)
	entry = protowire.AppendBytes(entry, feature)

	b = protowire.AppendTag(b, featuresFeatureField, protowire.BytesType)
	b = protowire.AppendBytes(b, entry)
	return b
}

// DecodeExample parses a serialized tf.train.Example and returns its
// int64_list features. Features of other kinds are skipped.
func DecodeExample(data []byte) (map[string][]int64, error) {
	out := make(map[string][]int64)

	err := forEachField(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if num != exampleFeaturesField || typ != protowire.BytesType {
			return nil
		}
		return forEachField(value, func(num protowire.Number, typ protowire.Type, entry []byte) error {
			if num != featuresFeatureField || typ != protowire.BytesType {
				return nil
			}
			name, values, err := decodeFeatureEntry(entry)
			if err != nil {
				return err
			}
			if values != nil {
				out[name] = values
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeFeature is the inverse of EncodeExample.
func DecodeFeature(data []byte) (types.EncodedFeature, error) {
	features, err := DecodeExample(data)
	if err != nil {
		return types.EncodedFeature{}, err
	}

	for _, name := range []string{InputIDsFeature, InputMaskFeature, SegmentIDsFeature, LabelIDsFeature} {
		if _, ok := features[name]; !ok {
			return types.EncodedFeature{}, fmt.Errorf("example is missing feature %s", name)
		}
	}
	if len(features[LabelIDsFeature]) != 1 {
		return types.EncodedFeature{}, fmt.Errorf("expected 1 label id, found %d", len(features[LabelIDsFeature]))
	}

	return types.EncodedFeature{
		InputIDs:   features[InputIDsFeature],
		InputMask:  features[InputMaskFeature],
		SegmentIDs: features[SegmentIDsFeature],
		LabelID:    features[LabelIDsFeature][0],
	}, nil
}

func decodeFeatureEntry(entry []byte) (string, []int64, error) {
	var name string
	var values []int64
	err := forEachField(entry, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch {
		case num == mapKeyField && typ == protowire.BytesType:
			name = string(value)
		case num == mapValueField && typ == protowire.BytesType:
			return forEachField(value, func(num protowire.Number, typ protowire.Type, list []byte) error {
				if num != featureInt64ListField || typ != protowire.BytesType {
					return nil
				}
				decoded, err := decodeInt64List(list)
				if err != nil {
					return err
				}
				values = decoded
				return nil
			})
		}
		return nil
	})
	return name, values, err
}

func decodeInt64List(list []byte) ([]int64, error) {
	values := make([]int64, 0)
	for len(list) > 0 {
		num, typ, n := protowire.ConsumeTag(list)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		list = list[n:]

		switch {
		case num == int64ListValueField && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(list)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			list = list[n:]
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return nil, protowire.ParseError(m)
				}
				values = append(values, int64(v))
				packed = packed[m:]
			}
		case num == int64ListValueField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(list)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			values = append(values, int64(v))
			list = list[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, list)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			list = list[n:]
		}
	}
	return values, nil
}

// forEachField calls fn for every length-delimited field of msg and skips the
// others.
func forEachField(msg []byte, fn func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		msg = msg[n:]

		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			msg = msg[n:]
			continue
		}

		value, n := protowire.ConsumeBytes(msg)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		msg = msg[n:]

		if err := fn(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}
