// Package relay builds the machine-aware relay tree a broadcast uses to fan
// out a message to a destination set (§4.4).
//
// Two planner variants exist in the system this spec distills from; this
// package ships only the machine-aware tree variant as the default per §9 —
// "should not ship as the default" rules out shipping the naive variant
// alongside it.
//
// Documentation Last Review: 30.07.2026
package relay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/wire"
)

// branchFactor is the n in the n-ary relay tree (§4.4).
const branchFactor = 2

// group is a single machine's set of destinations: a master (the
// lexicographically-first member, i.e. smallest LocationID since ids are
// assigned by lexicographic name order) and its slaves.
type group struct {
	master addr.LocationID
	slaves []addr.LocationID
}

// BuildTree builds a RelayInstruction tree rooted at sender that covers
// every destination in dests exactly once, biased by machine co-location.
//
// If dests is empty the result is the End leaf; callers that require at
// least one destination (the broadcast engine does) must treat that as
// fatal themselves.
func BuildTree(sender addr.LocationID, dests []addr.LocationID, dir *addr.Directory) (wire.RelayInstruction, error) {
	if len(dests) == 0 {
		return wire.EndInstruction(), nil
	}

	senderInfo, err := dir.InfoOf(sender)
	if err != nil {
		return wire.RelayInstruction{}, err
	}

	byMachine := make(map[string][]addr.LocationID)

	for _, d := range dests {
		info, err := dir.InfoOf(d)
		if err != nil {
			return wire.RelayInstruction{}, err
		}

		byMachine[info.Machine] = append(byMachine[info.Machine], d)
	}

	var sameMachine []addr.LocationID
	groups := make([]group, 0, len(byMachine))

	for machine, members := range byMachine {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

		if machine == senderInfo.Machine {
			sameMachine = members
			continue
		}

		groups = append(groups, group{master: members[0], slaves: members[1:]})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].master < groups[j].master })

	options := buildMasterTree(sender, groups)

	for _, slave := range sameMachine {
		options = append(options, wire.RelayOption{
			Sender:      sender,
			Destination: slave,
			Sub:         wire.EndInstruction(),
		})
	}

	if len(options) == 0 {
		return wire.EndInstruction(), nil
	}

	return wire.Relay(options...), nil
}

// buildMasterTree deals groups round-robin into branchFactor branches; the
// head of each branch becomes a RelayOption from sender whose sub-tree is
// the rest of that branch, built the same way with the head as the new
// relaying sender. Each master's sub-instruction also forwards to its own
// slaves.
func buildMasterTree(sender addr.LocationID, groups []group) []wire.RelayOption {
	if len(groups) == 0 {
		return nil
	}

	branches := make([][]group, branchFactor)
	for i, g := range groups {
		b := i % branchFactor
		branches[b] = append(branches[b], g)
	}

	options := make([]wire.RelayOption, 0, branchFactor)

	for _, branch := range branches {
		if len(branch) == 0 {
			continue
		}

		head := branch[0]
		rest := branch[1:]

		sub := buildMasterTree(head.master, rest)

		for _, slave := range head.slaves {
			sub = append(sub, wire.RelayOption{
				Sender:      head.master,
				Destination: slave,
				Sub:         wire.EndInstruction(),
			})
		}

		subInstruction := wire.EndInstruction()
		if len(sub) > 0 {
			subInstruction = wire.Relay(sub...)
		}

		options = append(options, wire.RelayOption{
			Sender:      sender,
			Destination: head.master,
			Sub:         subInstruction,
		})
	}

	return options
}

// Display renders instr as an indented tree of forwarding hops, resolving
// location names through dir, for debug logging of a broadcast's relay
// plan.
func Display(instr wire.RelayInstruction, dir *addr.Directory) string {
	return displayIndent(instr, dir, 0)
}

func displayIndent(instr wire.RelayInstruction, dir *addr.Directory, indent int) string {
	prefix := strings.Repeat("  ", indent)

	if instr.IsEnd() {
		return prefix + "end"
	}

	var b strings.Builder
	for i, opt := range instr.Options {
		name, err := dir.NameOf(opt.Destination)
		if err != nil {
			name = fmt.Sprintf("#%d", opt.Destination)
		}

		fmt.Fprintf(&b, "%s-> %s\n", prefix, name)
		b.WriteString(displayIndent(opt.Sub, dir, indent+1))
		if i < len(instr.Options)-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

// Destinations returns every destination appearing anywhere in instr, in
// the order they are first visited. It is used to verify tree coverage
// (§8: "Relay tree covers every destination exactly once").
func Destinations(instr wire.RelayInstruction) []addr.LocationID {
	var out []addr.LocationID

	for _, opt := range instr.Options {
		out = append(out, opt.Destination)
		out = append(out, Destinations(opt.Sub)...)
	}

	return out
}
