package main

import (
	"dagger/freedom/internal/dagger"
)

// Tidy runs "go mod tidy" and returns only go.mod and go.sum, ready to be
// exported over the checkout with "dagger call tidy export --path=.".
func (f *Freedom) Tidy() *dagger.Directory {
	tidied := f.goContainer().
		WithExec([]string{"go", "mod", "tidy"}).
		Directory("/src")

	return dag.Directory().
		WithFile("go.mod", tidied.File("go.mod")).
		WithFile("go.sum", tidied.File("go.sum"))
}
