// Package manifest implements the evaluation collaborator for declarative
// HCL job manifests. It is the built-in collaborator: tests and users
// without a Nix installation enumerate a manifest instead of an expression.
//
// A manifest nests "group" blocks, each containing "job" leaves, "hole"
// blocks (null nodes, omitted from the document), and "fail" blocks
// (declared per-path evaluation failures):
//
//	group "tools" {
//	  job "hello" {
//	    drv_path = "/nix/store/aaaa-hello.drv"
//	    system   = "x86_64-linux"
//	    meta {
//	      description = "GNU hello"
//	      license     = [{ shortName = "gpl3" }]
//	    }
//	  }
//	  hole "disabled" {}
//	}
package manifest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/evaljobs/internal/eval"
)

// fileRoot decodes the top level of a manifest file. The top level accepts
// the same blocks as a group body.
type fileRoot struct {
	Groups []*groupBlock `hcl:"group,block"`
	Jobs   []*jobBlock   `hcl:"job,block"`
	Holes  []*holeBlock  `hcl:"hole,block"`
	Fails  []*failBlock  `hcl:"fail,block"`
}

type groupBlock struct {
	Name   string        `hcl:"name,label"`
	Groups []*groupBlock `hcl:"group,block"`
	Jobs   []*jobBlock   `hcl:"job,block"`
	Holes  []*holeBlock  `hcl:"hole,block"`
	Fails  []*failBlock  `hcl:"fail,block"`
}

type jobBlock struct {
	Name    string     `hcl:"name,label"`
	DrvPath string     `hcl:"drv_path"`
	System  string     `hcl:"system,optional"`
	Meta    *metaBlock `hcl:"meta,block"`
}

// metaBlock keeps its body undecoded; meta attributes are free-form cty
// values flattened by metaString.
type metaBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type holeBlock struct {
	Name string `hcl:"name,label"`
}

type failBlock struct {
	Name    string `hcl:"name,label"`
	Message string `hcl:"message"`
}

// node is one position in the loaded job tree. Exactly one of the variant
// fields applies.
type node struct {
	job      *eval.Job
	children map[string]*node // non-nil for groups, including empty ones
	failMsg  string
	hole     bool
}

// Evaluator walks a loaded manifest tree. It is immutable after New and safe
// for concurrent use.
type Evaluator struct {
	root *node
}

var _ eval.Evaluator = (*Evaluator)(nil)

// New loads and decodes the manifest at path.
func New(path string) (*Evaluator, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(path, src)
}

// Parse decodes manifest source. filename is used in diagnostics only.
func Parse(filename string, src []byte) (*Evaluator, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing manifest %s: %w", filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decoding manifest %s: %w", filename, diags)
	}

	tree, err := buildGroup(root.Groups, root.Jobs, root.Holes, root.Fails)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", filename, err)
	}
	return &Evaluator{root: tree}, nil
}

func buildGroup(groups []*groupBlock, jobs []*jobBlock, holes []*holeBlock, fails []*failBlock) (*node, error) {
	n := &node{children: make(map[string]*node)}
	add := func(name string, child *node) error {
		if _, ok := n.children[name]; ok {
			return fmt.Errorf("duplicate entry %q", name)
		}
		n.children[name] = child
		return nil
	}
	for _, g := range groups {
		child, err := buildGroup(g.Groups, g.Jobs, g.Holes, g.Fails)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		if err := add(g.Name, child); err != nil {
			return nil, err
		}
	}
	for _, j := range jobs {
		job, err := buildJob(j)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", j.Name, err)
		}
		if err := add(j.Name, &node{job: job}); err != nil {
			return nil, err
		}
	}
	for _, h := range holes {
		if err := add(h.Name, &node{hole: true}); err != nil {
			return nil, err
		}
	}
	for _, f := range fails {
		if err := add(f.Name, &node{failMsg: f.Message}); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func buildJob(b *jobBlock) (*eval.Job, error) {
	job := &eval.Job{
		DrvPath: b.DrvPath,
		Name:    b.Name,
		System:  b.System,
	}
	if b.Meta == nil {
		return job, nil
	}
	attrs, diags := b.Meta.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("meta block: %w", diags)
	}
	meta := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("meta attribute %q: %w", name, diags)
		}
		meta[name] = metaString(v, metaSubAttr(name))
	}
	if len(meta) > 0 {
		job.Meta = meta
	}
	return job, nil
}

// Evaluate resolves one attribute path against the loaded tree. A missing
// path segment is a per-path failure, mirroring how an expression evaluator
// reports an unknown attribute.
func (e *Evaluator) Evaluate(_ context.Context, attrPath string) (eval.Result, error) {
	cur := e.root
	if attrPath != "" {
		for _, seg := range strings.Split(attrPath, ".") {
			if cur.children == nil {
				return eval.Failure(fmt.Sprintf("attribute '%s' in selection path '%s' not found", seg, attrPath)), nil
			}
			next, ok := cur.children[seg]
			if !ok {
				return eval.Failure(fmt.Sprintf("attribute '%s' in selection path '%s' not found", seg, attrPath)), nil
			}
			cur = next
		}
	}

	switch {
	case cur.hole:
		return eval.Empty(), nil
	case cur.failMsg != "":
		return eval.Failure(cur.failMsg), nil
	case cur.job != nil:
		return eval.JobResult(cur.job), nil
	default:
		names := make([]string, 0, len(cur.children))
		for name := range cur.children {
			names = append(names, name)
		}
		sort.Strings(names)
		return eval.ChildrenResult(names), nil
	}
}
