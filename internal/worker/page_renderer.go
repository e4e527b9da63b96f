package worker

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

func renderFrontendPage(logger *slog.Logger, targetURL string, preReadyScript string) (_ *rod.Page, cleanup func(), err error) {
	cleanup = func() {}

	logger.Info("Worker: navigating to frontend print page...", slog.String("url", targetURL))

	launch := launcher.New().
		Headless(true).
		NoSandbox(true)
	defer func() {
		if err != nil {
			launch.Cleanup()
		}
	}()

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, cleanup, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL).Timeout(90 * time.Second)
	if err := browser.Connect(); err != nil {
		return nil, cleanup, fmt.Errorf("connect browser: %w", err)
	}

	page := browser.MustPage(targetURL)
	cleanup = func() {
		if page != nil {
			_ = page.Close()
		}
		_ = browser.Close()
		launch.Cleanup()
	}

	page.MustWaitLoad()

	if strings.TrimSpace(preReadyScript) != "" {
		logger.Info("Worker: injecting print data before render...")
		if _, evalErr := page.Timeout(10 * time.Second).Eval(preReadyScript); evalErr != nil {
			return nil, cleanup, fmt.Errorf("inject print data: %w", evalErr)
		}
	}

	logger.Info("Worker: waiting for frontend render signal (#card-render-ready)...")
	page.Timeout(30 * time.Second).MustElement("#card-render-ready")

	// Wait for webfonts too; fallback font metrics shift the card layout.
	if _, evalErr := page.Timeout(5 * time.Second).Eval(`() => {
	  if (document && document.fonts && document.fonts.ready) {
	    return Promise.race([
	      document.fonts.ready.then(() => true),
	      new Promise((resolve) => setTimeout(() => resolve(true), 3000))
	    ]);
	  }
	  return true;
	}`); evalErr != nil {
		logger.Warn("Worker: document.fonts.ready wait failed, continue", slog.Any("error", evalErr))
	}
	logger.Info("Worker: render signal received.")

	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, cleanup, fmt.Errorf("set emulated media to print: %w", err)
	}

	cleanupCSS := `
  html, body {
    margin: 0 !important;
    padding: 0 !important;
    background: white !important;
  }
  #card-root {
    box-shadow: none !important;
    margin: 0 auto !important;
    background: white !important;
  }
  @media print {
    * {
      -webkit-print-color-adjust: exact !important;
      print-color-adjust: exact !important;
    }
    @page {
      size: A4;
      margin: 0;
    }
    body * {
      visibility: hidden !important;
    }
    #card-root, #card-root * {
      visibility: visible !important;
    }
    #card-root {
      position: fixed !important;
      top: 0 !important;
      left: 50% !important;
      transform: translateX(-50%) !important;
      z-index: 999999 !important;
    }
  }
`
	if err := page.AddStyleTag("", cleanupCSS); err != nil {
		return nil, cleanup, fmt.Errorf("inject cleanup css: %w", err)
	}

	page.MustWaitIdle()
	return page, cleanup, nil
}

func exportPDF(page *rod.Page) ([]byte, error) {
	params := &proto.PagePrintToPDF{
		PrintBackground:   true,
		PaperWidth:        float64Ptr(8.27),
		PaperHeight:       float64Ptr(11.69),
		MarginTop:         float64Ptr(0),
		MarginBottom:      float64Ptr(0),
		MarginLeft:        float64Ptr(0),
		MarginRight:       float64Ptr(0),
		PreferCSSPageSize: true,
	}
	reader, err := page.PDF(params)
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}
