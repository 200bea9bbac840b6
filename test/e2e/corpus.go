// Package e2e provides end-to-end tests over a corpus of generated PDF manuals.
package e2e

import (
	"testing"

	"github.com/hyperjump/manualqa/internal/pdftest"
)

// Manual is one PDF in the E2E corpus. ID is the file name without extension.
type Manual struct {
	ID    string
	Pages []string
}

// Filename returns the PDF file name of the manual.
func (m Manual) Filename() string {
	return m.ID + ".pdf"
}

// QueryTestCase defines a question and the manual that must be among the top citations.
type QueryTestCase struct {
	Question    string
	ExpectedDoc string
	Description string
}

// Corpus holds manuals and question test cases for E2E tests.
type Corpus struct {
	Manuals   []Manual
	TestCases []QueryTestCase
}

// BuildCorpus returns a corpus of product manuals. Each manual states one distinctive fact that
// only its test question asks about.
func BuildCorpus() *Corpus {
	manuals := []Manual{
		{"pump", []string{
			"Centrifugal pump P-200 service manual. Flange bolts use the torque limit: 50 Nm. Tighten in a star pattern.",
			"Replace the mechanical seal when the pump leaks more than ten drops per minute.",
		}},
		{"valve", []string{
			"Pressure relief valve RV-12. The relief valve opens at 8 bar. Inspect the valve spring yearly.",
		}},
		{"compressor", []string{
			"Air compressor AC-5 manual. Change the compressor oil every 500 operating hours using ISO VG 46 oil.",
		}},
		{"boiler", []string{
			"Boiler B-40 manual. Flush the boiler heat exchanger with descaling solution every autumn.",
		}},
		{"conveyor", []string{
			"Conveyor belt CB-9 manual. Set belt tension so the belt deflects 15 millimetres at midspan.",
		}},
		{"generator", []string{
			"Diesel generator G-30 manual. Exercise the generator under load for thirty minutes every month.",
		}},
		{"chiller", []string{
			"Chiller CH-7 manual. The unit holds a refrigerant charge of 12 kilograms of R-134a.",
		}},
		{"forklift", []string{
			"Forklift F-2 operator manual. The forklift battery must be recharged when the gauge shows twenty percent.",
		}},
		{"welder", []string{
			"Welder W-180 manual. Use argon shielding gas at a flow rate of 12 litres per minute.",
		}},
		{"lathe", []string{
			"Lathe L-1 manual. Lubricate the lathe spindle bearings with grease every 40 hours.",
		}},
	}
	cases := []QueryTestCase{
		{"What is the torque limit for the flange bolts?", "pump", "torque limit from pump manual"},
		{"At what pressure does the relief valve open?", "valve", "relief valve set point"},
		{"How often should the compressor oil be changed?", "compressor", "oil change interval"},
		{"How do I flush the boiler heat exchanger?", "boiler", "boiler maintenance"},
		{"How much should the conveyor belt deflect at midspan?", "conveyor", "belt tension"},
		{"How long should the generator be exercised under load?", "generator", "generator exercise"},
		{"How much refrigerant does the chiller hold?", "chiller", "refrigerant charge"},
		{"When must the forklift battery be recharged?", "forklift", "battery threshold"},
		{"What argon shielding gas flow rate should the welder use?", "welder", "gas flow"},
		{"How often are the lathe spindle bearings lubricated?", "lathe", "lubrication interval"},
	}
	return &Corpus{Manuals: manuals, TestCases: cases}
}

// Write stores every manual as a PDF in dir and returns their paths in corpus order.
func (c *Corpus) Write(t testing.TB, dir string) []string {
	t.Helper()
	paths := make([]string, 0, len(c.Manuals))
	for _, m := range c.Manuals {
		paths = append(paths, pdftest.Write(t, dir, m.Filename(), m.Pages...))
	}
	return paths
}
