// Freedom CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/freedom/internal/dagger"
)

// Freedom is the main module for the freedom CI/CD pipeline
type Freedom struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Freedom CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", ".freedom", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Freedom {
	return &Freedom{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with the project
// source mounted. The gateway is pure Go, so CGO stays off.
//
// It is the shared foundation for tests and builds.
func (f *Freedom) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("CGO_ENABLED", "0").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", f.Source)
}

// Test runs the freedom unit tests via "go test"
func (f *Freedom) Test(ctx context.Context) (string, error) {
	return f.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}

// Vet runs "go vet" over every package
//
// +check
func (f *Freedom) Vet(ctx context.Context) (string, error) {
	return f.goContainer().
		WithExec([]string{"go", "vet", "./..."}).
		Stdout(ctx)
}
