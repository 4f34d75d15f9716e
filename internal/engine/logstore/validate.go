package logstore

import (
	"fmt"

	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/options"
)

func isValidKey(key string) error {
	if len(key) > int(options.MaxKeySize) {
		return errors.NewFieldRangeError("key", len(key), 0, options.MaxKeySize).
			WithMessage(
				fmt.Sprintf(
					"Key size %s exceeds maximum allowed size of %s",
					options.FormatBytes(uint64(len(key))), options.FormatBytes(uint64(options.MaxKeySize)),
				),
			)
	}
	return nil
}

func isValidValue(value string) error {
	if len(value) > int(options.MaxValueSize) {
		return errors.NewFieldRangeError("value", len(value), 0, options.MaxValueSize).
			WithMessage(
				fmt.Sprintf(
					"Value size %s exceeds maximum allowed size of %s",
					options.FormatBytes(uint64(len(value))), options.FormatBytes(uint64(options.MaxValueSize)),
				),
			)
	}
	return nil
}
