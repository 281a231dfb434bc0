package browser

// documentCookieOverrideJS neuters script-set cookies while leaving reads
// functional, for sites whose CMP falls back to inline cookie writes.
const documentCookieOverrideJS = `
(() => {
	try {
		const original = Object.getOwnPropertyDescriptor(Document.prototype, 'cookie')
			|| Object.getOwnPropertyDescriptor(HTMLDocument.prototype, 'cookie');
		if (!original || !original.get) return;
		Object.defineProperty(document, 'cookie', {
			get() { return original.get.call(document); },
			set(v) {
				const name = String(v).split('=')[0].trim().toLowerCase();
				const essential = name.startsWith('php') || name.startsWith('jsessionid')
					|| name.startsWith('csrf') || name.startsWith('xsrf') || name.startsWith('_token');
				if (essential) original.set.call(document, v);
			},
			configurable: true
		});
	} catch (e) {}
})();
`

// bannerRejectJS clicks the first visible reject/close control of common
// consent banners. Returns true once something was clicked.
const bannerRejectJS = `
() => {
	const rejectTexts = ['拒否', '同意しない', '必要なもののみ', 'reject all', 'reject', 'decline', 'deny', '閉じる'];
	const containers = document.querySelectorAll(
		'[id*="cookie" i], [class*="cookie" i], [id*="consent" i], [class*="consent" i], [id*="gdpr" i], [class*="gdpr" i]'
	);
	for (const c of containers) {
		const rect = c.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		for (const btn of c.querySelectorAll('button, a, [role="button"]')) {
			const text = (btn.innerText || btn.value || '').trim().toLowerCase();
			if (!text || text.length > 40) continue;
			if (rejectTexts.some(t => text.includes(t))) {
				btn.click();
				return true;
			}
		}
	}
	return false;
}
`
