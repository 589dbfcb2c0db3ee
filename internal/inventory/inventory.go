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

// Package inventory parses hosts files in the familiar ini-like layout:
// [group] headers followed by one host per line with optional key=value
// settings.
package inventory

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

// DefaultGroup collects hosts that appear before any [group] header.
const DefaultGroup = "all"

// Host is one workflow target.
type Host struct {
	Hostname string
	User     string
	Port     int
	Password string
}

// Inventory is an ordered host list with group membership. Order follows
// the file: node actors are created and reported in this order.
type Inventory struct {
	Name   string
	hosts  []Host
	groups map[string][]string
}

// Load parses the file at path.
func Load(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()

	inv := &Inventory{
		Name:   path,
		groups: map[string][]string{},
	}
	seen := map[string]bool{}
	group := DefaultGroup

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, &pkgerrors.ValidationError{
					Field:   fmt.Sprintf("line %d", lineNo),
					Message: "unterminated group header",
				}
			}
			group = strings.TrimSpace(line[1 : len(line)-1])
			if group == "" {
				return nil, &pkgerrors.ValidationError{
					Field:   fmt.Sprintf("line %d", lineNo),
					Message: "empty group name",
				}
			}
			continue
		}

		host, err := parseHostLine(line)
		if err != nil {
			return nil, &pkgerrors.ValidationError{
				Field:   fmt.Sprintf("line %d", lineNo),
				Message: err.Error(),
			}
		}
		if !seen[host.Hostname] {
			seen[host.Hostname] = true
			inv.hosts = append(inv.hosts, host)
		}
		inv.groups[group] = append(inv.groups[group], host.Hostname)
		if group != DefaultGroup {
			inv.groups[DefaultGroup] = append(inv.groups[DefaultGroup], host.Hostname)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return inv, nil
}

func parseHostLine(line string) (Host, error) {
	fields := strings.Fields(line)
	host := Host{Hostname: fields[0], Port: 22}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Host{}, fmt.Errorf("expected key=value, got %q", field)
		}
		switch key {
		case "ansible_user", "user":
			host.User = value
		case "ansible_password", "password":
			host.Password = value
		case "ansible_port", "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return Host{}, fmt.Errorf("invalid port %q", value)
			}
			host.Port = port
		default:
			// Unknown keys are tolerated so files shared with other
			// tooling still load.
		}
	}
	return host, nil
}

// FromHosts builds an in-memory inventory over an existing host slice.
// Used where limit semantics are needed on an already-resolved set.
func FromHosts(hosts []Host) *Inventory {
	inv := &Inventory{groups: map[string][]string{}}
	for _, host := range hosts {
		inv.hosts = append(inv.hosts, host)
		inv.groups[DefaultGroup] = append(inv.groups[DefaultGroup], host.Hostname)
	}
	return inv
}

// Hosts returns every host in file order.
func (inv *Inventory) Hosts() []Host {
	out := make([]Host, len(inv.hosts))
	copy(out, inv.hosts)
	return out
}

// Group returns the hosts belonging to a named group, in file order.
func (inv *Inventory) Group(name string) []Host {
	members := inv.groups[name]
	if members == nil {
		return nil
	}
	want := map[string]bool{}
	for _, hostname := range members {
		want[hostname] = true
	}
	var out []Host
	for _, host := range inv.hosts {
		if want[host.Hostname] {
			out = append(out, host)
		}
	}
	return out
}

// Groups lists the group names, sorted.
func (inv *Inventory) Groups() []string {
	names := make([]string, 0, len(inv.groups))
	for name := range inv.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Limit intersects the inventory with a comma-separated hostname set. An
// empty intersection is an error: running a workflow against zero nodes
// is always a mistake.
func (inv *Inventory) Limit(csv string) ([]Host, error) {
	if strings.TrimSpace(csv) == "" {
		return inv.Hosts(), nil
	}
	want := map[string]bool{}
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			want[name] = true
		}
	}

	var out []Host
	for _, host := range inv.hosts {
		if want[host.Hostname] {
			out = append(out, host)
		}
	}
	if len(out) == 0 {
		return nil, &pkgerrors.ValidationError{
			Field:      "limit",
			Message:    fmt.Sprintf("no inventory host matches %q", csv),
			Suggestion: "check the --limit value against the inventory hostnames",
		}
	}
	return out, nil
}
