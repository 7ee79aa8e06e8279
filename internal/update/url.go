package update

import "fmt"

// manifestV1URL builds the suffixless (v1) manifest URL for channel,
// optionally pinned to date (spec.md §4.5 step 2 / §4.6), e.g.
// "<dist>/dist/channel-rust-nightly" or "<dist>/dist/2026-07-01/channel-rust-nightly".
func manifestV1URL(distRoot, channel, date string) string {
	if date == "" {
		return fmt.Sprintf("%s/dist/channel-rust-%s", distRoot, channel)
	}
	return fmt.Sprintf("%s/dist/%s/channel-rust-%s", distRoot, date, channel)
}

// manifestV2URL builds the TOML v2 manifest URL.
func manifestV2URL(distRoot, channel, date string) string {
	return manifestV1URL(distRoot, channel, date) + ".toml"
}

// sha256SidecarURL builds the sibling checksum file URL for a manifest or
// installer URL.
func sha256SidecarURL(url string) string {
	return url + ".sha256"
}

// packageDirURL returns the directory v1 installer filenames resolve
// against (spec.md §4.6: "under <dist>/<date>/").
func packageDirURL(distRoot, date string) string {
	if date == "" {
		return distRoot + "/dist"
	}
	return fmt.Sprintf("%s/dist/%s", distRoot, date)
}
