package main

type navItem struct {
	ID      string
	Label   string
	Path    string
	Primary bool
}

var navItems = []navItem{
	{ID: "home", Label: "Home", Path: "/"},
	{ID: "about", Label: "About OvaQuick", Path: "/about"},
	{ID: "conditions", Label: "Conditions Explained", Path: "/conditions"},
	{ID: "analysis", Label: "Start Analysis", Path: "/analysis", Primary: true},
}

type feature struct {
	Title       string
	Description string
}

type step struct {
	Number      int
	Title       string
	Description string
}

type condition struct {
	Key          string
	Title        string
	Definition   string
	Significance []string
}

var features = []feature{
	{
		Title:       "Instant AI Insight",
		Description: "Get immediate, data-driven feedback on ultrasound scans using our trained machine learning model.",
	},
	{
		Title:       "Three Key Conditions",
		Description: "Specialized detection for Dominant Follicle, Normal Ovarian function, and Polycystic Ovaries (PCO).",
	},
	{
		Title:       "Informative & Educational",
		Description: "Access clear explanations and context for every analysis result to better understand the findings.",
	},
}

var steps = []step{
	{Number: 1, Title: "Data Ingestion", Description: "Ultrasound images are securely uploaded and forwarded to the model for feature extraction."},
	{Number: 2, Title: "AI Classification", Description: "The deep learning model analyzes follicular size, count, and distribution patterns."},
	{Number: 3, Title: "Rapid Diagnosis", Description: "The result is classified into one of the three key ovarian conditions with a confidence score."},
}

var conditions = []condition{
	{
		Key:        "DF",
		Title:      "Dominant Follicle (DF)",
		Definition: "Indicates the presence of a single follicle that has grown significantly larger than the others, typically measuring over 10mm in diameter, and is expected to rupture during ovulation.",
		Significance: []string{
			"A key sign of a healthy, ovulatory cycle.",
			"Crucial marker for monitoring fertility treatments.",
			"The size and growth rate are essential metrics for prediction.",
		},
	},
	{
		Key:        "Normal",
		Title:      "Normal Ovarian Function",
		Definition: "Characterized by a typical number of small to medium-sized follicles (antral follicle count, or AFC) that are healthy, but without the presence of a clear, significantly enlarged dominant follicle at the current scan stage.",
		Significance: []string{
			"Represents typical ovarian morphology and function.",
			"Follicle counts and sizes fall within expected physiological ranges.",
			"A healthy baseline for assessing overall reproductive potential.",
		},
	},
	{
		Key:        "PCO",
		Title:      "Polycystic Ovaries (PCO)",
		Definition: "The appearance of the ovary is enlarged and contains 12 or more follicles, measuring 2-9mm in diameter, typically arranged peripherally ('string of pearls' sign).",
		Significance: []string{
			"One of the diagnostic criteria for Polycystic Ovary Syndrome (PCOS).",
			"Often associated with anovulation and hormonal imbalances.",
			"Requires careful monitoring and clinical correlation.",
		},
	},
}
