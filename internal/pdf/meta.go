package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// DocInfo is the document-level metadata of a PDF: the info dictionary,
// its custom properties and whether the catalog carries an XMP stream.
type DocInfo struct {
	Title      string
	Author     string
	Subject    string
	Keywords   string
	Creator    string
	Properties map[string]string
	XMP        bool
}

// Fields names the populated entries, for logging.
func (d DocInfo) Fields() []string {
	var out []string
	for name, v := range map[string]string{
		"title": d.Title, "author": d.Author, "subject": d.Subject,
		"keywords": d.Keywords, "creator": d.Creator,
	} {
		if v != "" {
			out = append(out, name)
		}
	}
	for k := range d.Properties {
		out = append(out, k)
	}
	if d.XMP {
		out = append(out, "xmp")
	}
	sort.Strings(out)
	return out
}

func docInfo(ctx *model.Context) DocInfo {
	d := DocInfo{
		Title:    ctx.Title,
		Author:   ctx.Author,
		Subject:  ctx.Subject,
		Keywords: ctx.Keywords,
		Creator:  ctx.Creator,
		XMP:      ctx.CatalogXMPMeta != nil,
	}
	if len(ctx.Properties) > 0 {
		d.Properties = make(map[string]string, len(ctx.Properties))
		for k, v := range ctx.Properties {
			d.Properties[k] = v
		}
	}
	if root, err := ctx.Catalog(); err == nil && root["Metadata"] != nil {
		d.XMP = true
	}
	return d
}

// Info reads the document metadata of path.
func Info(path string) (DocInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return DocInfo{}, job.Wrap(job.ErrWorkspace, "pdf", err)
	}
	defer f.Close()
	ctx, err := api.ReadAndValidate(f, config())
	if err != nil {
		return DocInfo{}, &job.Error{Kind: job.ErrInvalidInput, Op: "pdf", Msg: fmt.Sprintf("%s is not a valid PDF", filepath.Base(path)), Err: err}
	}
	return docInfo(ctx), nil
}

// Scrub writes in to out without its info dictionary, custom properties or
// XMP metadata stream and returns what was removed. The writer stamps a
// fresh info dictionary holding only its producer name and dates.
func Scrub(in, out string) (DocInfo, error) {
	const op = "scrub_metadata"
	f, err := os.Open(in)
	if err != nil {
		return DocInfo{}, job.Wrap(job.ErrWorkspace, op, err)
	}
	defer f.Close()

	conf := config()
	conf.Cmd = model.REMOVEPROPERTIES
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return DocInfo{}, &job.Error{Kind: job.ErrInvalidInput, Op: op, Msg: fmt.Sprintf("%s is not a valid PDF", filepath.Base(in)), Err: err}
	}
	removed := docInfo(ctx)

	ctx.Info = nil
	ctx.Title, ctx.Author, ctx.Subject, ctx.Keywords, ctx.Creator = "", "", "", "", ""
	ctx.Properties = map[string]string{}
	ctx.CatalogXMPMeta = nil
	if root, err := ctx.Catalog(); err == nil {
		root.Delete("Metadata")
		root.Delete("PieceInfo")
	}

	w, err := os.Create(out)
	if err != nil {
		return DocInfo{}, job.Wrap(job.ErrWorkspace, op, err)
	}
	if err := api.WriteContext(ctx, w); err != nil {
		w.Close()
		return DocInfo{}, &job.Error{Kind: job.ErrToolFailed, Op: op, Err: err}
	}
	return removed, job.Wrap(job.ErrWorkspace, op, w.Close())
}
