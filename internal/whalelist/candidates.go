package whalelist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FileCandidates is a CandidateSource backed by a plain text file, one
// hex address per line; blank lines and lines starting with '#' are
// skipped. This is the curated candidate list production reads from
// (spec §4.2: "a curated, periodically refreshed list"), refreshed by
// whatever process maintains the file — out of scope here.
type FileCandidates struct {
	Path string
}

func (f FileCandidates) Addresses(ctx context.Context) ([]common.Address, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("whalelist: open candidates file: %w", err)
	}
	defer file.Close()

	var addrs []common.Address
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !common.IsHexAddress(line) {
			return nil, fmt.Errorf("whalelist: invalid address in candidates file: %q", line)
		}
		addrs = append(addrs, common.HexToAddress(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("whalelist: scan candidates file: %w", err)
	}
	return addrs, nil
}
