// Golemata CLI — запуск декларативно описанных приложений на
// децентрализованном компьют-маркетплейсе.
//
// Использование:
//
//	golemata [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	start     Запуск сессии приложения
//	verify    Валидация дескрипторов
//	state     Состояние запущенного приложения
//	data      Последние записи потока data
//	sessions  Список сессий
//	command   Команды управления (stop, suspend, exec)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Golemata/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "golemata",
		Short:         "Golemata — declarative apps on a decentralized compute marketplace",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://127.0.0.1:4578", "Control API URL of a running session")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewStartCmd(outputFn),
		cli.NewVerifyCmd(outputFn),
		cli.NewStateCmd(clientFn, outputFn),
		cli.NewDataCmd(clientFn, outputFn),
		cli.NewSessionsCmd(clientFn, outputFn),
		cli.NewCommandCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
