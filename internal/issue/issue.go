// SPDX-License-Identifier: EPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	InputNotFoundId Id = iota + 1
	DescriptorInvalidId
	DependenciesNotSatisfiedId
	BuildHookFailedId
	CacheSyncFailedId
	ConfigLoadFailedId
	ArchiveWriteFailedId
	OutputDirNotFoundId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink // documentation links, once a docs site exists
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	inputNotFoundIssue = &Issue{
		id: InputNotFoundId,
		mdMsg: `
# Input archive not found!

One of the archives named on the command line does not exist or is not
readable.

## Things you can try:
- Check the path for typos
- Verify that the build that produces the archive has finished
- Use an absolute path if the archive lives outside the working directory`,
	}

	descriptorInvalidIssue = &Issue{
		id: DescriptorInvalidId,
		mdMsg: `
# Invalid module descriptor!

The archive does not carry a usable descriptor at its root.

## Requirements:
- A base or module archive must contain a ` + "`module.json`" + ` at its root
- An overlay archive must contain an ` + "`overlay.json`" + ` at its root
- The descriptor must at least declare a non-empty ` + "`name`" + `

## Things you can try:
- Inspect the archive:
~~~
$ tar -tzf my-module.tgz | head
~~~

- Repackage the module from its source directory:
~~~
$ romg pack -m path/to/module
~~~`,
	}

	dependenciesNotSatisfiedIssue = &Issue{
		id: DependenciesNotSatisfiedId,
		mdMsg: `
# Dependencies not satisfied!

One or more modules declare dependency ranges the selected archives cannot
satisfy. Every violation is listed above.

## Things you can try:
- Pick module versions that match the declared ranges
- Rebuild the base if modules require a newer ` + "`bits-base`" + `
- Run the validator on its own to iterate quickly:
~~~
$ romg checkdeps --base base.tgz module-a.tgz module-b.tgz
~~~

- Skip validation only if you know the bundle is coherent:
~~~
$ romg compose --skip-dep-check ...
~~~`,
	}

	buildHookFailedIssue = &Issue{
		id: BuildHookFailedId,
		mdMsg: `
# Build hook failed!

A module's install hook exited with a non-zero status.

## Common causes:
- npm is not installed or not in PATH
- The hook script has a bug or missing dependency
- Cross-compilation is misconfigured (check the ARCH environment variable)

## Things you can try:
- Run the hook manually inside the module directory:
~~~
$ npm run bits:install
~~~

- Compose without hooks to rule out environment problems`,
	}

	cacheSyncFailedIssue = &Issue{
		id: CacheSyncFailedId,
		mdMsg: `
# Package cache merge failed!

A module's offline package cache could not be merged into the bundle's
shared cache. A partially merged cache breaks offline installs on the
target, so composition stops here.

## Things you can try:
- Check free disk space in the temp directory
- Verify rsync is installed, or let the built-in fallback handle the merge
- Repackage the module if its cache directory is corrupt`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file exists but could not be parsed or validated.

## Things you can try:
- Check the error message above for the specific field
- Validate your CUE syntax with the cue command-line tool
- Remove the config file to fall back to defaults`,
	}

	archiveWriteFailedIssue = &Issue{
		id: ArchiveWriteFailedId,
		mdMsg: `
# Failed to write the bundle!

The composed tree could not be written to the output archive.

## Common causes:
- Output directory does not exist or is not writable
- Disk is full
- A file in the tree disappeared mid-write (concurrent modification)

## Things you can try:
- Create the output directory first
- Point --output-dir at a writable location`,
	}

	outputDirNotFoundIssue = &Issue{
		id: OutputDirNotFoundId,
		mdMsg: `
# Output directory not found!

The path given to ` + "`--output-dir`" + ` does not exist or is not a directory.
Composition does not start until the output location is usable.

## Things you can try:
- Create the directory first:
~~~
$ mkdir -p ./dist
~~~

- Point ` + "`--output-dir`" + ` at an existing directory
- Omit the flag to write into the current directory`,
	}

	issues = map[Id]*Issue{
		inputNotFoundIssue.Id():            inputNotFoundIssue,
		descriptorInvalidIssue.Id():        descriptorInvalidIssue,
		dependenciesNotSatisfiedIssue.Id(): dependenciesNotSatisfiedIssue,
		buildHookFailedIssue.Id():          buildHookFailedIssue,
		cacheSyncFailedIssue.Id():          cacheSyncFailedIssue,
		configLoadFailedIssue.Id():         configLoadFailedIssue,
		archiveWriteFailedIssue.Id():       archiveWriteFailedIssue,
		outputDirNotFoundIssue.Id():        outputDirNotFoundIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
