package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	logx "coderelay/pkg/logx"
)

// EncodeCodes renders the code table. Keys are emitted sorted so equal
// tables produce equal payloads.
func EncodeCodes(codes map[string]string) ([]byte, error) {
	if codes == nil {
		codes = map[string]string{}
	}
	return json.Marshal(codes)
}

func DecodeCodes(b []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(bytes.TrimSpace(b)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]string{}, err
	}
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

// EncodeSubscribers renders the id set as an ascending JSON array.
func EncodeSubscribers(ids map[int64]struct{}) ([]byte, error) {
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	slices.Sort(list)
	return json.Marshal(list)
}

func DecodeSubscribers(b []byte) (map[int64]struct{}, error) {
	out := map[int64]struct{}{}
	if len(bytes.TrimSpace(b)) == 0 {
		return out, nil
	}
	var list []int64
	if err := json.Unmarshal(b, &list); err != nil {
		return map[int64]struct{}{}, err
	}
	for _, id := range list {
		out[id] = struct{}{}
	}
	return out, nil
}

// LoadCodes reads the code table. A corrupt payload decodes to an empty
// table with a warning. A read failure is returned so the caller can avoid
// saving a partial table over data it never saw.
func LoadCodes(ctx context.Context, st Store, log logx.Logger) (map[string]string, error) {
	b, err := st.Load(ctx, NamespaceCodes)
	if err != nil {
		return map[string]string{}, fmt.Errorf("load %s: %w", NamespaceCodes, err)
	}
	codes, err := DecodeCodes(b)
	if err != nil {
		log.Warn("codes corrupt, starting empty", logx.Err(err), logx.Int("bytes", len(b)))
		return map[string]string{}, nil
	}
	return codes, nil
}

// LoadSubscribers reads the id set. Same error contract as LoadCodes.
func LoadSubscribers(ctx context.Context, st Store, log logx.Logger) (map[int64]struct{}, error) {
	b, err := st.Load(ctx, NamespaceSubscribers)
	if err != nil {
		return map[int64]struct{}{}, fmt.Errorf("load %s: %w", NamespaceSubscribers, err)
	}
	ids, err := DecodeSubscribers(b)
	if err != nil {
		log.Warn("subscribers corrupt, starting empty", logx.Err(err), logx.Int("bytes", len(b)))
		return map[int64]struct{}{}, nil
	}
	return ids, nil
}
