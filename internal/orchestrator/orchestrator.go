// Package orchestrator sequences the install pipeline's components —
// lock, release index, downloader, checksum verifier, extractor,
// filesystem ops, restart hook, and state store — into the three
// operator-facing flows: check, update, and show-version.
//
// Grounded on the stop-download-swap-relaunch sequencing in the
// teacher's internal/apps/install.go (installUpdate): the same
// ordering discipline — extract to a side directory first, only
// mutate the live tree after the new version is verified good, and
// never roll back once the switch has happened — is generalized here
// from a single hardcoded update handler into the three-operation,
// lock-guarded pipeline the spec requires.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/distronomicon/distronomicon/internal/checksum"
	"github.com/distronomicon/distronomicon/internal/config"
	"github.com/distronomicon/distronomicon/internal/downloader"
	"github.com/distronomicon/distronomicon/internal/errkind"
	"github.com/distronomicon/distronomicon/internal/extract"
	"github.com/distronomicon/distronomicon/internal/fsops"
	"github.com/distronomicon/distronomicon/internal/lock"
	"github.com/distronomicon/distronomicon/internal/logging"
	"github.com/distronomicon/distronomicon/internal/releaseindex"
	"github.com/distronomicon/distronomicon/internal/restarthook"
	"github.com/distronomicon/distronomicon/internal/state"
)

// Orchestrator wires the pipeline components together for one
// managed app.
type Orchestrator struct {
	Cfg        *config.Config
	Index      *releaseindex.Client
	Downloader *downloader.Downloader
}

// New builds an Orchestrator from cfg, constructing the release index
// client and downloader with cfg's token and host.
func New(cfg *config.Config) *Orchestrator {
	idx := releaseindex.New(cfg.Token)
	if cfg.APIHost != "" {
		idx.Host = cfg.APIHost
	}
	return &Orchestrator{Cfg: cfg, Index: idx, Downloader: downloader.New()}
}

// Outcome is the human-facing result of a check or update flow.
type Outcome struct {
	Status  string // "up-to-date", "update-available", "install-available", "installed", "no-change"
	OldTag  string
	NewTag  string
	Message string
}

func (o *Outcome) String() string { return o.Message }

// Update runs the full install pipeline: lock, resolve the latest
// release, download, verify, extract, promote, switch, restart, prune,
// and persist state. It implements spec §4.8's update flow exactly.
func (o *Orchestrator) Update(ctx context.Context) (*Outcome, error) {
	guard, err := lock.Acquire(o.Cfg.LockDir, o.Cfg.App)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	return o.runUpdate(ctx)
}

func (o *Orchestrator) runUpdate(ctx context.Context) (*Outcome, error) {
	st, err := state.Load(o.Cfg.StatePath())
	if err != nil {
		return nil, err
	}

	repo := releaseindex.Repo{Owner: o.Cfg.RepoOwner, Name: o.Cfg.RepoName}
	in := releaseindex.Validators{ETag: st.ETag, LastModified: st.LastModified}
	outcome, err := o.Index.FetchLatest(ctx, repo, o.Cfg.AllowPrerelease, in)
	if err != nil {
		return nil, err
	}

	if outcome.NotModified {
		st.ETag = outcome.Validators.ETag
		st.LastModified = outcome.Validators.LastModified
		if err := state.Save(o.Cfg.StatePath(), st); err != nil {
			return nil, err
		}
		return &Outcome{Status: "no-change", OldTag: st.LatestTag, NewTag: st.LatestTag, Message: "up-to-date: " + st.LatestTag}, nil
	}

	release := outcome.Release
	releaseDir := filepath.Join(o.Cfg.ReleasesDir(), release.Tag)
	if release.Tag == st.LatestTag && fsops.AlreadyPromoted(releaseDir) {
		st.ETag = outcome.Validators.ETag
		st.LastModified = outcome.Validators.LastModified
		if err := state.Save(o.Cfg.StatePath(), st); err != nil {
			return nil, err
		}
		return &Outcome{Status: "no-change", OldTag: st.LatestTag, NewTag: release.Tag, Message: "up-to-date: " + release.Tag}, nil
	}

	assetPattern, err := regexp.Compile(o.Cfg.AssetPattern)
	if err != nil {
		return nil, errkind.Wrap(errkind.NoMatchingAsset, "compile asset pattern", err)
	}
	asset, err := releaseindex.SelectAsset(release, assetPattern)
	if err != nil {
		return nil, err
	}

	var checksumAsset *releaseindex.Asset
	verify := o.Cfg.ChecksumPattern != "" && !o.Cfg.SkipVerification
	if verify {
		sumPattern, err := regexp.Compile(o.Cfg.ChecksumPattern)
		if err != nil {
			return nil, errkind.Wrap(errkind.NoMatchingSum, "compile checksum pattern", err)
		}
		found, ok := releaseindex.SelectChecksumAsset(release, sumPattern)
		if !ok {
			return nil, errkind.New(errkind.NoMatchingSum, sumPattern.String())
		}
		checksumAsset = found
	}

	nonce := uuid.NewString()[:8]
	stagingDir := filepath.Join(o.Cfg.StagingDir(), release.Tag+"."+nonce)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.State, "create staging directory", err)
	}
	defer os.RemoveAll(stagingDir)

	assetFile, err := o.Downloader.Fetch(ctx, asset.DownloadURL, o.Cfg.Token, stagingDir)
	if err != nil {
		return nil, err
	}
	defer assetFile.Release()

	logging.Infof("downloaded %s (%s)", asset.Name, humanize.Bytes(uint64(asset.SizeHint)))

	if verify {
		sumFile, err := o.Downloader.Fetch(ctx, checksumAsset.DownloadURL, o.Cfg.Token, stagingDir)
		if err != nil {
			return nil, err
		}
		defer sumFile.Release()

		manifestBytes, err := os.ReadFile(sumFile.Path)
		if err != nil {
			return nil, errkind.Wrap(errkind.MalformedResp, "read checksum manifest", err)
		}
		manifest, err := checksum.Parse(manifestBytes)
		if err != nil {
			return nil, err
		}
		expected, err := manifest.Lookup(asset.Name)
		if err != nil {
			return nil, err
		}
		if err := checksum.Verify(assetFile.Path, expected); err != nil {
			return nil, err
		}
	}

	extractDir := filepath.Join(stagingDir, "extracted")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.State, "create extraction directory", err)
	}
	if _, err := extract.Unpack(assetFile.Path, extractDir, asset.Name, extract.DefaultLimits()); err != nil {
		return nil, err
	}

	if err := fsops.Promote(extractDir, releaseDir); err != nil {
		if !(errkind.Is(err, errkind.Promotion) && release.Tag == st.LatestTag && fsops.AlreadyPromoted(releaseDir)) {
			return nil, err
		}
	}

	if err := fsops.SwitchBins(releaseDir, o.Cfg.BinDir(), release.Tag); err != nil {
		return nil, err
	}

	var restartErr error
	if o.Cfg.RestartCommand != "" {
		restartErr = restarthook.Run(ctx, o.Cfg.RestartCommand, restarthook.DefaultTimeout)
	}

	if err := fsops.Prune(o.Cfg.ReleasesDir(), release.Tag, o.Cfg.RetentionCount); err != nil {
		logging.Warnf("prune: %v", err)
	}

	now := time.Now().UTC()
	st.LatestTag = release.Tag
	st.ETag = outcome.Validators.ETag
	st.LastModified = outcome.Validators.LastModified
	st.InstalledAt = &now
	if err := state.Save(o.Cfg.StatePath(), st); err != nil {
		return nil, err
	}

	if restartErr != nil {
		return nil, restartErr
	}

	return &Outcome{Status: "installed", NewTag: release.Tag, Message: "installed: " + release.Tag}, nil
}

// Check performs the same resolution as Update through the
// not-modified/no-op comparison but never mutates releases/, bin/, or
// staging/. It always writes back refreshed validators.
func (o *Orchestrator) Check(ctx context.Context) (*Outcome, error) {
	guard, err := lock.Acquire(o.Cfg.LockDir, o.Cfg.App)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	st, err := state.Load(o.Cfg.StatePath())
	if err != nil {
		return nil, err
	}

	repo := releaseindex.Repo{Owner: o.Cfg.RepoOwner, Name: o.Cfg.RepoName}
	in := releaseindex.Validators{ETag: st.ETag, LastModified: st.LastModified}
	outcome, err := o.Index.FetchLatest(ctx, repo, o.Cfg.AllowPrerelease, in)
	if err != nil {
		return nil, err
	}

	if outcome.NotModified {
		st.ETag = outcome.Validators.ETag
		st.LastModified = outcome.Validators.LastModified
		if err := state.Save(o.Cfg.StatePath(), st); err != nil {
			return nil, err
		}
		return &Outcome{Status: "up-to-date", OldTag: st.LatestTag, NewTag: st.LatestTag, Message: "up-to-date: " + st.LatestTag}, nil
	}

	release := outcome.Release
	st.ETag = outcome.Validators.ETag
	st.LastModified = outcome.Validators.LastModified
	if err := state.Save(o.Cfg.StatePath(), st); err != nil {
		return nil, err
	}

	if release.Tag == st.LatestTag {
		return &Outcome{Status: "up-to-date", OldTag: st.LatestTag, NewTag: release.Tag, Message: "up-to-date: " + release.Tag}, nil
	}
	if st.LatestTag == "" {
		return &Outcome{Status: "install-available", NewTag: release.Tag, Message: "install-available: " + release.Tag}, nil
	}
	return &Outcome{
		Status:  "update-available",
		OldTag:  st.LatestTag,
		NewTag:  release.Tag,
		Message: fmt.Sprintf("update-available: %s -> %s", st.LatestTag, release.Tag),
	}, nil
}

// VersionResult is the outcome of ShowVersion.
type VersionResult struct {
	Tag       string
	Installed bool
	Torn      bool
}

// ShowVersion resolves the currently installed tag by reading bin/*
// symlinks directly, without the lock — it is a pure read of the
// filesystem's authoritative state.
func (o *Orchestrator) ShowVersion() (*VersionResult, error) {
	entries, err := os.ReadDir(o.Cfg.BinDir())
	if err != nil {
		if os.IsNotExist(err) {
			return &VersionResult{Installed: false}, nil
		}
		return nil, errkind.Wrap(errkind.Symlink, "list bin directory", err)
	}

	counts := map[string]int{}
	for _, entry := range entries {
		linkPath := filepath.Join(o.Cfg.BinDir(), entry.Name())
		target, err := os.Readlink(linkPath)
		if err != nil {
			continue
		}
		tag := tagFromReleaseLink(target)
		if tag != "" {
			counts[tag]++
		}
	}

	if len(counts) == 0 {
		return &VersionResult{Installed: false}, nil
	}
	if len(counts) == 1 {
		for tag := range counts {
			return &VersionResult{Tag: tag, Installed: true}, nil
		}
	}

	type tagCount struct {
		tag   string
		count int
	}
	var ranked []tagCount
	for tag, n := range counts {
		ranked = append(ranked, tagCount{tag, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].tag < ranked[j].tag
	})
	return &VersionResult{Tag: ranked[0].tag, Installed: true, Torn: true}, nil
}

// tagFromReleaseLink extracts <tag> from a symlink target of the form
// ../releases/<tag>/<name>.
func tagFromReleaseLink(target string) string {
	parts := strings.Split(filepath.ToSlash(target), "/")
	for i, p := range parts {
		if p == "releases" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// Unlock force-removes the app's lock file. It is a diagnostic
// operation and is never invoked as part of check or update.
func (o *Orchestrator) Unlock() error {
	return lock.ForceRelease(o.Cfg.LockDir, o.Cfg.App)
}
