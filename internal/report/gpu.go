// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// GPU identification patterns as the common inspection tools print them.
var (
	// nvidia-smi --query-gpu=... --format=csv value rows, e.g.
	// "NVIDIA A100-SXM4-40GB, 40960 MiB".
	nvidiaCSVRe = regexp.MustCompile(`^(NVIDIA [^,]+), ?(.+)$`)

	// rocm-smi key/value rows, e.g. "Card series: Instinct MI210".
	rocmKVRe = regexp.MustCompile(`^(Card series|Card model|GPU ID|Device Name)\s*:\s*(.+)$`)

	// lspci VGA rows, e.g.
	// "03:00.0 VGA compatible controller: Advanced Micro Devices ...".
	lspciVGARe = regexp.MustCompile(`VGA compatible controller: (.+)$`)
)

// GpuSummary scans the session's log output for GPU identification and
// emits one line per attribute per node, plus a count.
type GpuSummary struct {
	Store Querier
	Rank  int
}

func (s *GpuSummary) Order() int {
	if s.Rank != 0 {
		return s.Rank
	}
	return OrderGpuSummary
}

func (s *GpuSummary) Generate(sessionID int64) (string, error) {
	records, err := s.Store.LogsBySession(sessionID, 0)
	if err != nil {
		return "", err
	}

	// attribute line -> set, keyed per node for stable grouping.
	perNode := map[string][]string{}
	seen := map[string]bool{}
	gpus := 0

	add := func(node, attr string) {
		key := node + "|" + attr
		if seen[key] {
			return
		}
		seen[key] = true
		perNode[node] = append(perNode[node], attr)
	}

	for _, rec := range records {
		for _, raw := range strings.Split(rec.Message, "\n") {
			line := strings.TrimSpace(nodePrefixRe.ReplaceAllString(raw, ""))
			switch {
			case nvidiaCSVRe.MatchString(line):
				m := nvidiaCSVRe.FindStringSubmatch(line)
				add(rec.NodeID, fmt.Sprintf("gpu=%s memory=%s", m[1], strings.TrimSpace(m[2])))
				gpus++
			case rocmKVRe.MatchString(line):
				m := rocmKVRe.FindStringSubmatch(line)
				add(rec.NodeID, fmt.Sprintf("%s=%s", strings.ToLower(strings.ReplaceAll(m[1], " ", "_")), strings.TrimSpace(m[2])))
			case lspciVGARe.MatchString(line):
				m := lspciVGARe.FindStringSubmatch(line)
				add(rec.NodeID, "vga="+strings.TrimSpace(m[1]))
			}
		}
	}

	if len(perNode) == 0 {
		return "", nil
	}

	nodes := make([]string, 0, len(perNode))
	for node := range perNode {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var lines []string
	lines = append(lines, "GPU summary:")
	for _, node := range nodes {
		for _, attr := range perNode[node] {
			lines = append(lines, fmt.Sprintf("%s: %s", node, attr))
		}
	}
	if gpus > 0 {
		lines = append(lines, fmt.Sprintf("%d GPUs detected", gpus))
	}
	return strings.Join(lines, "\n"), nil
}
