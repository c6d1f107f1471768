// Package sources provides the discovery backends that enumerate
// repositories and report them through a repo.Sink.
//
// Architecture:
//   - Source: one discovery backend, invoked once per scan-path
//   - SourceFactory: picks a backend by type
//   - SessionClient: the review service client, which may answer with a
//     login redirect instead of a project list
//
// Current implementations:
//   - treeSource: walks a directory tree looking for git directories
//   - projectListSource: scans the paths listed in a project-list file
//   - gerritSource: asks the review service for the projects visible to the
//     impersonated caller and falls back to a local scan when that fails
package sources
