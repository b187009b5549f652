package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hxlabs/vkc/internal/compiler"
	"github.com/hxlabs/vkc/internal/config"
	"github.com/hxlabs/vkc/internal/refsim"
	"github.com/hxlabs/vkc/internal/vm"
)

const validationSeed = 1

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "compile, run against the reference simulator, and report any mismatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}

			res, err := compiler.Compile(cfg)
			if err != nil {
				return err
			}

			forest := refsim.BuildForest(cfg.Instance.TreeHeight, validationSeed)
			inputs := refsim.BuildInputs(cfg.Instance.BatchSize, validationSeed)
			want := refsim.Run(forest, inputs, cfg.Instance.Rounds)

			got, err := runOnVM(cfg, res, forest, inputs)
			if err != nil {
				return fmt.Errorf("vm run: %w", err)
			}

			mismatches := refsim.Compare(want, got)
			if len(mismatches) == 0 {
				fmt.Println("validate: OK, all lanes match the reference kernel")
				return nil
			}
			fmt.Printf("validate: %d/%d lanes mismatched\n", len(mismatches), cfg.Instance.BatchSize)
			for _, m := range mismatches {
				fmt.Println(" ", m)
			}
			return fmt.Errorf("validate: correctness mismatch")
		},
	}
	return cmd
}

// runOnVM seeds a vm.Machine's scratch with the emitted program's forest
// and input regions (their base addresses surfaced on compiler.Result) and
// executes the bundle stream, returning the final accumulators read back
// from the machine's scratch at the input region.
func runOnVM(cfg config.Config, res compiler.Result, forest refsim.Forest, inputs refsim.Inputs) (refsim.Inputs, error) {
	machine := vm.New(cfg.Machine.ScratchSize, vm.Memory{
		Forest: forest.Values,
		Input:  make([]uint64, cfg.Machine.ScratchSize),
	})

	forestBase := int(res.ForestBase)
	inpBase := int(res.InputBase)

	scratch := machine.Scratch()
	copy(scratch[forestBase:forestBase+len(forest.Values)], forest.Values)
	for lane, acc := range inputs.Acc {
		scratch[inpBase+lane] = acc
	}

	if err := machine.Run(res.Bundles); err != nil {
		return refsim.Inputs{}, err
	}

	out := refsim.Inputs{Idx: append([]int(nil), inputs.Idx...), Acc: make([]uint64, cfg.Instance.BatchSize)}
	for lane := range out.Acc {
		out.Acc[lane] = machine.Scratch()[inpBase+lane]
	}
	return out, nil
}
