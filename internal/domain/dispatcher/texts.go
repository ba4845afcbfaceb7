package dispatcher

// User-facing texts. WelcomeText is sent with legacy Markdown; the rest are plain.
const (
	WelcomeText = `🌱 *Welcome to Plant Doctor!*

I'm here to help diagnose your plant problems using AI.

*How to use:*
1. Take a clear photo of the affected plant part
2. Make sure the issue is visible (leaves, stems, etc.)
3. Send the photo directly to this chat
4. I'll analyze and provide recommendations

*Tips for better analysis:*
• Good lighting is important
• Focus on the affected areas
• Include both healthy and unhealthy parts if possible

Send me a plant photo now to get started! 📸`

	AnalyzePromptText = "📸 Please send me a photo of your plant for analysis."
	CallbackReplyText = "Feature coming soon!"
	AnalyzingNotice   = "🔍 Analyzing your plant photo..."

	PhotoFailureText   = "❌ Sorry, I couldn't analyze the image. Please try again with a clearer photo."
	GenericFailureText = "❌ Sorry, I encountered an error. Please try again."
)
