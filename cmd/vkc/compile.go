package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hxlabs/vkc/internal/compiler"
	"github.com/hxlabs/vkc/internal/ir"
	"github.com/hxlabs/vkc/internal/machine"
	"github.com/hxlabs/vkc/internal/scheduler"
)

func newCompileCmd() *cobra.Command {
	var outPath, format string

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "run Emitter->Pruner->Builder->Scheduler and write the bundle stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}
			res, err := compiler.Compile(cfg)
			if err != nil {
				return err
			}

			var rendered string
			switch format {
			case "", "json":
				rendered, err = renderJSON(res.Bundles)
			case "asm":
				rendered = renderAsm(res.Bundles)
			default:
				return fmt.Errorf("unknown --format %q (want json or asm)", format)
			}
			if err != nil {
				return err
			}

			if outPath == "" {
				fmt.Println(rendered)
				return nil
			}
			return os.WriteFile(outPath, []byte(rendered), 0o644)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file (defaults to stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or asm")
	return cmd
}

// jsonBundle is the JSON-serializable shape of a Bundle: Bundle.Slots keys
// by machine.Engine, which json.Marshal can't handle directly as a map key
// (it isn't a string), so engines are rendered by name.
type jsonBundle struct {
	Cycle int                   `json:"cycle"`
	Slots map[string][]jsonSlot `json:"slots"`
}

type jsonSlot struct {
	Op   string `json:"op"`
	ALU  string `json:"alu,omitempty"`
	Dst  int    `json:"dst"`
	Src  [3]int `json:"src"`
	Imm  int64  `json:"imm,omitempty"`
	Len  int    `json:"len"`
	Cond int    `json:"cond"`
}

func renderJSON(bundles []scheduler.Bundle) (string, error) {
	out := make([]jsonBundle, len(bundles))
	for i, b := range bundles {
		jb := jsonBundle{Cycle: b.Cycle, Slots: make(map[string][]jsonSlot, len(b.Slots))}
		engines := make([]machine.Engine, 0, len(b.Slots))
		for e := range b.Slots {
			engines = append(engines, e)
		}
		sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
		for _, e := range engines {
			slots := b.Slots[e]
			js := make([]jsonSlot, len(slots))
			for si, s := range slots {
				js[si] = jsonSlot{
					Op:   s.Op.String(),
					ALU:  aluName(s),
					Dst:  int(s.Dst),
					Src:  [3]int{int(s.Src[0]), int(s.Src[1]), int(s.Src[2])},
					Imm:  s.Imm,
					Len:  s.Len,
					Cond: int(s.Cond),
				}
			}
			jb.Slots[e.String()] = js
		}
		out[i] = jb
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling bundle stream: %w", err)
	}
	return string(b), nil
}

func aluName(s ir.Slot) string {
	if s.Op == ir.OpScalarALU || s.Op == ir.OpVectorALU {
		return s.ALU.String()
	}
	return ""
}

// renderAsm renders a disassembly-style listing, one line per slot grouped
// by cycle and engine, readable for debugging a specific compile.
func renderAsm(bundles []scheduler.Bundle) string {
	var out string
	for _, b := range bundles {
		out += fmt.Sprintf("cycle %d:\n", b.Cycle)
		engines := make([]machine.Engine, 0, len(b.Slots))
		for e := range b.Slots {
			engines = append(engines, e)
		}
		sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
		for _, e := range engines {
			for _, s := range b.Slots[e] {
				out += fmt.Sprintf("  %-6s %s\n", e.String(), disasmSlot(s))
			}
		}
	}
	return out
}

func disasmSlot(s ir.Slot) string {
	switch s.Op {
	case ir.OpScalarALU, ir.OpVectorALU:
		return fmt.Sprintf("%s = %d %s %d (len=%d)", addrName(s.Dst), s.Src[0], s.ALU, s.Src[1], s.Len)
	case ir.OpFMA:
		return fmt.Sprintf("%s = fma(%d, %d, %d) (len=%d)", addrName(s.Dst), s.Src[0], s.Src[1], s.Src[2], s.Len)
	case ir.OpVSelect:
		return fmt.Sprintf("%s = vsel(%d, %d, cond=%d) (len=%d)", addrName(s.Dst), s.Src[0], s.Src[1], s.Cond, s.Len)
	case ir.OpGatherOffset:
		return fmt.Sprintf("%s = gather[%d]", addrName(s.Dst), s.Src[0])
	case ir.OpBroadcast:
		return fmt.Sprintf("%s = bcast(%d) (len=%d)", addrName(s.Dst), s.Src[0], s.Len)
	case ir.OpScalarStore:
		return fmt.Sprintf("store[%d] = %d", s.Imm, s.Src[0])
	case ir.OpVectorStore:
		return fmt.Sprintf("store[%d..+%d] = %d", s.Imm, s.Len, s.Src[0])
	case ir.OpAddImmFromZero:
		return fmt.Sprintf("%s = zero + %d", addrName(s.Dst), s.Imm)
	case ir.OpConstLoad:
		return fmt.Sprintf("%s = const %d", addrName(s.Dst), s.Imm)
	case ir.OpBarrier:
		return "barrier"
	case ir.OpDebugCompare:
		return fmt.Sprintf("dbg.cmp %d, %d", s.Src[0], s.Src[1])
	default:
		return s.Op.String()
	}
}

func addrName(a ir.Addr) string {
	return fmt.Sprintf("$%d", int(a))
}
