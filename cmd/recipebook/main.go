// Command recipebook runs the recipe notebook API and its offline tools.
//
//	@title			Recipe Notebook API
//	@version		1.0
//	@description	Store recipes and reconcile JSON imports against the notebook.
//	@BasePath		/api/v1
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/tbourn/recipe-notebook/internal/cli"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	err := cli.NewRootCommand().Execute()
	var exitErr *cli.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Reported) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
