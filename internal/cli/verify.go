package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Golemata/internal/descriptor"
)

// NewVerifyCmd создаёт команду `golemata verify`.
//
// Дескрипторы загружаются и валидируются без захвата каких-либо
// удалённых ресурсов; интерпретированное дерево (после слияния и
// implicit-умолчаний) печатается в stdout.
func NewVerifyCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "verify DESCRIPTOR [DESCRIPTOR...]",
		Short: "Validate descriptors and print the interpreted tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			dapp, err := descriptor.LoadDapp(args...)
			if err != nil {
				return err
			}
			if err := descriptor.VerifyManifests(dapp); err != nil {
				return err
			}

			tree, err := dapp.Tree()
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(tree)
				return nil
			}
			raw, err := yaml.Marshal(tree)
			if err != nil {
				return err
			}
			out.Raw(string(raw))
			out.Success("Descriptor OK")
			return nil
		},
	}
}
