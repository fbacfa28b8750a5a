// Package tool provides the tools research agents call.
//
// Every tool implements langchaingo's tools.Tool: it takes a plain string
// input and returns text for the model.
//
//	search, err := tool.NewSerperSearch("")       // SERPER_API_KEY
//	brave, err := tool.NewBraveSearch("")         // BRAVE_API_KEY
//	videos, err := tool.NewYouTubeSearch("")      // YOUTUBE_API_KEY
//	details, err := tool.NewYouTubeVideo("")
//	page := tool.NewWebPage(8000)
//
// WebSearch picks whichever search backend has a key configured.
package tool
