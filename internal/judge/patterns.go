// Package judge decides whether a fired submission succeeded. It walks six
// ordered stages over the post-submission page state, each producing a
// confidence-weighted verdict or passing to the next, and attaches the full
// stage trace to the result.
package judge

import "regexp"

// successPhrases match typical completion messages.
var successPhrases = []*regexp.Regexp{
	regexp.MustCompile(`送信(が|は)?完了`),
	regexp.MustCompile(`送信(いた|致)しました`),
	regexp.MustCompile(`受け?付け(が完了|ました|いたしました)`),
	regexp.MustCompile(`お問い?合わ?せ(を受け付け|ありがとう)`),
	regexp.MustCompile(`ありがとうございま(す|した)。?`),
	regexp.MustCompile(`(?i)thank you`),
	regexp.MustCompile(`(?i)(submission|message) (received|sent|complete)`),
	regexp.MustCompile(`自動返信メール`),
	regexp.MustCompile(`確認メールをお送り`),
}

// strongSuccessPhrases alone veto the strict failure gate.
var strongSuccessPhrases = []*regexp.Regexp{
	regexp.MustCompile(`送信(が|は)?完了`),
	regexp.MustCompile(`お問い?合わ?せありがとう`),
	regexp.MustCompile(`受け付けました`),
}

// successURLTokens in the post-submission path raise stage-1 confidence.
var successURLTokens = []string{
	"thanks", "thank-you", "thankyou", "complete", "completed",
	"finish", "done", "sent", "success", "kanryou", "kanryo",
}

// successContainerClasses are common completion containers stage 2 reads in
// addition to body text.
var successContainerClasses = []string{
	".thanks", ".complete", ".success", ".finish", ".done-message",
	"#thanks", "#complete",
}

// errorFamily is one recognizable failure category for stage 5 and the
// strict early gate.
type errorFamily struct {
	Name     string
	Patterns []*regexp.Regexp
}

var errorFamilies = []errorFamily{
	{
		Name: "recaptcha",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)recaptcha`),
			regexp.MustCompile(`私はロボットではありません`),
			regexp.MustCompile(`(?i)verify you are (a )?human`),
		},
	},
	{
		Name: "solicitation_refusal",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`営業.{0,20}お断り`),
			regexp.MustCompile(`勧誘.{0,20}(お断り|ご遠慮)`),
		},
	},
	{
		Name: "email_format",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`メールアドレス(の形式|が正しく|をご確認)`),
			regexp.MustCompile(`(?i)invalid (e-?mail|email address)`),
		},
	},
	{
		Name: "required_missing",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`必須項目`),
			regexp.MustCompile(`入力されていません`),
			regexp.MustCompile(`(?i)required field`),
			regexp.MustCompile(`未入力`),
		},
	},
	{
		Name: "system",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`システムエラー`),
			regexp.MustCompile(`(?i)internal server error`),
			regexp.MustCompile(`(?i)service unavailable`),
		},
	},
	{
		Name: "retry_request",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(しばらく|時間をおいて).{0,15}(お試し|再度)`),
			regexp.MustCompile(`もう一度お試しください`),
			regexp.MustCompile(`(?i)please try again`),
		},
	},
	{
		Name: "general",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`送信(でき|に失敗)`),
			regexp.MustCompile(`エラーが発生`),
			regexp.MustCompile(`(?i)an error (has )?occurred`),
		},
	},
}

// strictGateFamilies are the four categories the early-failure text gate
// counts; two or more must hit.
var strictGateFamilies = []string{"required_missing", "email_format", "retry_request", "recaptcha"}

// errorTitleTokens flag an error page by its title in stage 6.
var errorTitleTokens = []string{"error", "404", "500", "forbidden", "not found", "エラー"}

// errorElementSelectors locate visible validation errors for the early gate
// and the retry path.
var errorElementSelectors = []string{
	".error", ".errors", ".error-message", ".alert-danger",
	"[aria-invalid=\"true\"]", "[role=\"alert\"]", ".wpcf7-not-valid-tip",
	".mw_wp_form .error", ".validation-error",
}
