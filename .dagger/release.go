package main

import (
	"context"
	"fmt"
	"strings"

	"dagger/freedom/internal/dagger"
)

// gatewayPort is where "freedom serve" listens inside the image.
const gatewayPort = 8080

// imagePlatforms are the variants of the published gateway image.
var imagePlatforms = []dagger.Platform{"linux/amd64", "linux/arm64"}

// linuxBinary cross-compiles the freedom CLI for a linux platform.
func (f *Freedom) linuxBinary(platform dagger.Platform, ldflags string) *dagger.File {
	_, arch, _ := strings.Cut(string(platform), "/")
	return f.goContainer().
		WithEnvVariable("GOOS", "linux").
		WithEnvVariable("GOARCH", arch).
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", "/out/freedom", "./cli/freedom"}).
		File("/out/freedom")
}

// Image packages the gateway as a container whose default command is
// "freedom serve". Settings come from FREEDOM_* environment variables.
func (f *Freedom) Image(
	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,

	// Target platform
	// +optional
	// +default="linux/amd64"
	platform dagger.Platform,
) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("alpine:3.21").
		WithExec([]string{"apk", "add", "--no-cache", "ca-certificates"}).
		WithFile("/usr/local/bin/freedom", f.linuxBinary(platform, releaseLdflags(version, commit))).
		WithLabel("org.opencontainers.image.title", "freedom").
		WithLabel("org.opencontainers.image.version", version).
		WithLabel("org.opencontainers.image.revision", commit).
		WithEnvVariable("FREEDOM_GATEWAY_LISTEN", fmt.Sprintf(":%d", gatewayPort)).
		WithExposedPort(gatewayPort).
		WithEntrypoint([]string{"freedom"}).
		WithDefaultArgs([]string{"serve"})
}

// Publish pushes the multi-platform gateway image tagged with version and
// "latest", returning the published references.
func (f *Freedom) Publish(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Image repository
	// +optional
	// +default="ghcr.io/papercomputeco/freedom"
	repository string,

	// Registry username
	username string,

	// Registry password or token
	password *dagger.Secret,
) ([]string, error) {
	variants := make([]*dagger.Container, 0, len(imagePlatforms))
	for _, platform := range imagePlatforms {
		variants = append(variants, f.Image(version, commit, platform))
	}

	registry, _, _ := strings.Cut(repository, "/")
	publisher := dag.Container().WithRegistryAuth(registry, username, password)

	refs := make([]string, 0, 2)
	for _, tag := range []string{version, "latest"} {
		ref, err := publisher.Publish(ctx, repository+":"+tag, dagger.ContainerPublishOpts{
			PlatformVariants: variants,
		})
		if err != nil {
			return refs, fmt.Errorf("publishing %s:%s: %w", repository, tag, err)
		}
		refs = append(refs, ref)
	}

	return refs, nil
}
