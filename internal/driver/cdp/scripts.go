package cdp

// Elements found by a lookup are kept in a per-document registry on window.
// A new document starts a new registry with a fresh token, so keys handed out
// for an earlier document no longer resolve and the element reads as stale.
const findScript = `(function(kind, value, token) {
	let reg = window.__wikiprobe;
	if (!reg) {
		reg = window.__wikiprobe = {token: token, seq: 0, els: new Map(), keys: new WeakMap()};
	}
	let nodes = [];
	if (kind === "xpath") {
		const r = document.evaluate(value, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < r.snapshotLength; i++) {
			const n = r.snapshotItem(i);
			if (n.nodeType === Node.ELEMENT_NODE) nodes.push(n);
		}
	} else {
		nodes = Array.from(document.querySelectorAll(value));
	}
	return nodes.map(n => {
		let key = reg.keys.get(n);
		if (!key) {
			key = reg.token + ":" + (++reg.seq);
			reg.keys.set(n, key);
			reg.els.set(key, n);
		}
		return key;
	});
})`

const elementScript = `(function(key, fn, args) {
	const reg = window.__wikiprobe;
	const el = reg && reg.els.get(key);
	if (!el || !el.isConnected) {
		if (reg) reg.els.delete(key);
		return {stale: true};
	}
	return {value: fn(el, ...args)};
})`

const textBody = `function(el) {
	const t = el.innerText !== undefined ? el.innerText : el.textContent;
	return (t || "").trim();
}`

// attributeBody prefers the live property over the markup attribute.
const attributeBody = `function(el, name) {
	let v = el[name];
	if (v === undefined || v === null || typeof v === "object" || typeof v === "function") {
		v = el.getAttribute(name);
	}
	return v === undefined || v === null ? "" : String(v);
}`

const displayedBody = `function(el) {
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return false;
	const s = getComputedStyle(el);
	if (s.visibility === "hidden" || s.visibility === "collapse") return false;
	for (let n = el; n && n.nodeType === Node.ELEMENT_NODE; n = n.parentElement) {
		const ns = getComputedStyle(n);
		if (ns.display === "none" || ns.opacity === "0") return false;
	}
	return true;
}`

const enabledBody = `function(el) {
	if (el.disabled === true) return false;
	if (el.closest("fieldset[disabled]")) return false;
	return el.getAttribute("aria-disabled") !== "true";
}`

// clickTargetBody scrolls the element to the middle of the viewport and
// reports the point a real click would land on, or why it cannot.
const clickTargetBody = `function(el) {
	if (el.disabled === true) return {state: "disabled"};
	el.scrollIntoView({block: "center", inline: "center"});
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return {state: "not visible"};
	const x = r.left + r.width / 2;
	const y = r.top + r.height / 2;
	const hit = document.elementFromPoint(x, y);
	if (hit && hit !== el && !el.contains(hit)) {
		let by = hit.tagName.toLowerCase();
		if (hit.id) by += "#" + hit.id;
		return {state: "covered", by: by};
	}
	return {state: "ok", x: x, y: y};
}`

const focusBody = `function(el) {
	if (el.disabled === true || el.readOnly === true) return false;
	el.focus();
	return document.activeElement === el;
}`

const clearBody = `function(el) {
	if (el.disabled === true || el.readOnly === true) return false;
	el.focus();
	if ("value" in el) {
		el.value = "";
	} else if (el.isContentEditable) {
		el.textContent = "";
	}
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
	return true;
}`

const selectOptionBody = `function(el, value) {
	if (el.tagName !== "SELECT") return "not a select";
	if (el.disabled === true) return "disabled";
	const opt = Array.from(el.options).find(o => o.value === value);
	if (!opt) return "no option";
	if (opt.disabled) return "disabled";
	el.value = value;
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
	return "ok";
}`

const scrollIntoViewBody = `function(el) {
	el.scrollIntoView({block: "center"});
	return true;
}`

const scrollToTextScript = `(function(text) {
	const w = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	for (let n = w.nextNode(); n; n = w.nextNode()) {
		if (n.textContent.includes(text) && n.parentElement) {
			n.parentElement.scrollIntoView({block: "center"});
			return true;
		}
	}
	return false;
})`

const (
	scrollByScript    = `window.scrollBy(0, %d)`
	scrollToEndScript = `window.scrollTo(0, document.body.scrollHeight)`
	sourceScript      = `document.documentElement.outerHTML`
)
