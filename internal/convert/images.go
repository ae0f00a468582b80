package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/archive"
	"github.com/ironsheep/doc-tools-mcp/internal/imaging"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
	"github.com/ironsheep/doc-tools-mcp/internal/render"
)

func rasterFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "png":
		return render.FormatPNG, nil
	case "jpg", "jpeg":
		return render.FormatJPEG, nil
	case "tif", "tiff":
		return render.FormatTIFF, nil
	}
	return "", job.Errorf(job.ErrInvalidInput, "to_image", "unsupported image format %q", format)
}

func (e *Engine) toImage(ctx context.Context, ws Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	if err := e.needRender("to_image"); err != nil {
		return job.Artifact{}, err
	}
	in := desc.Input(0).Path
	format, err := rasterFormat(desc.Option("format", desc.Format()))
	if err != nil {
		return job.Artifact{}, err
	}
	dpi, err := desc.IntOption("dpi", 150)
	if err != nil {
		return job.Artifact{}, err
	}
	if dpi < 36 || dpi > 1200 {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "to_image", "dpi %d outside 36-1200", dpi)
	}
	width, err := desc.IntOption("width", 0)
	if err != nil {
		return job.Artifact{}, err
	}
	if width < 0 {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "to_image", "negative width")
	}
	total, err := pdf.PageCount(in)
	if err != nil {
		return job.Artifact{}, err
	}
	pages, err := pdf.PageList(desc.Option("pages", ""), total)
	if err != nil {
		return job.Artifact{}, err
	}
	imgDir := filepath.Join(outDir, "pages")
	if err := mkdir(imgDir); err != nil {
		return job.Artifact{}, err
	}
	images, err := e.render.RenderPages(ctx, ws, in, pages, dpi, format, imgDir)
	if err != nil {
		return job.Artifact{}, err
	}
	if width > 0 {
		for _, img := range images {
			if err := resize(img, width, format); err != nil {
				return job.Artifact{}, err
			}
		}
	}

	ext := filepath.Ext(images[0])
	stem := job.Stem(desc.Input(0).Name)
	if len(images) == 1 {
		name := stem + ext
		return job.NewArtifact(images[0], name), nil
	}
	entries := make([]archive.Entry, len(images))
	for i, img := range images {
		entries[i] = archive.Entry{Name: fmt.Sprintf("%s_page_%d%s", stem, pages[i], ext), Path: img}
	}
	name := outputName(desc, "_images", "zip")
	out := filepath.Join(outDir, name)
	if err := archive.Write(out, entries); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

func resize(path string, width int, format string) error {
	img, err := imaging.Load(path)
	if err != nil {
		return &job.Error{Kind: job.ErrToolSilentFailure, Op: "to_image", Msg: "rendered page unreadable", Err: err}
	}
	if err := imaging.Save(imaging.FitWidth(img, width), path, format); err != nil {
		return job.Wrap(job.ErrWorkspace, "to_image", err)
	}
	return nil
}

// pageSizes are the fixed page sizes image_to_pdf can fit images onto.
var pageSizes = map[string][2]float64{
	"a4":     {pdf.A4.Wd, pdf.A4.Ht},
	"letter": {pdf.Letter.Wd, pdf.Letter.Ht},
}

func (e *Engine) imageToPdf(_ context.Context, _ Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	dpi, err := desc.IntOption("dpi", 96)
	if err != nil {
		return job.Artifact{}, err
	}
	if dpi <= 0 {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "image_to_pdf", "dpi must be positive")
	}
	page := strings.ToLower(desc.Option("page", ""))
	size, fixed := pageSizes[page]
	if page != "" && page != "auto" && !fixed {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "image_to_pdf", "unknown page size %q", page)
	}
	work := filepath.Join(outDir, "work")
	if err := mkdir(work); err != nil {
		return job.Artifact{}, err
	}

	layout := make([]pdf.ImagePage, 0, desc.NumInputs())
	for _, in := range desc.Inputs() {
		info, err := imaging.Info(in.Path)
		if err != nil {
			return job.Artifact{}, &job.Error{Kind: job.ErrInvalidInput, Op: "image_to_pdf", Msg: in.Name, Err: err}
		}
		path, typ, err := imaging.ForPDF(in.Path, work)
		if err != nil {
			return job.Artifact{}, &job.Error{Kind: job.ErrInvalidInput, Op: "image_to_pdf", Msg: in.Name, Err: err}
		}
		pg := pdf.ImagePage{
			Path:   path,
			Type:   typ,
			Width:  pdf.PixelsToPoints(info.Width, dpi),
			Height: pdf.PixelsToPoints(info.Height, dpi),
		}
		if fixed {
			pg.Width, pg.Height, pg.Fit = size[0], size[1], true
			if info.Width > info.Height {
				pg.Width, pg.Height = pg.Height, pg.Width
			}
		}
		layout = append(layout, pg)
	}
	name := outputName(desc, "", "pdf")
	out := filepath.Join(outDir, name)
	if err := pdf.ComposeImages(layout, out); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}
