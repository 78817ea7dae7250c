package bridge

import (
	"fmt"
)

// ClientScript is the runtime installed into every page at document
// creation. It exposes window.qtwebview2.api: a proxy whose every property
// access yields a function that posts a {name, params, id} envelope and
// returns a promise settled by the per-call response event.
const ClientScript = `
(function() {
    function getUuid() {
        return 'xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx'.replace(/[xy]/g, function (c) {
            var r = (Math.random() * 16) | 0,
                v = c == 'x' ? r : (r & 0x3) | 0x8;
            return v.toString(16);
        });
    }

    window.qtwebview2 = {
        api: new Proxy({}, {
            get(target, prop, receiver) {
                return (...args) => {
                    const id = getUuid();
                    const promise = new Promise((resolve, reject) => {
                        const handler = (e) => {
                            if (e.detail.error) {
                                reject(new Error(e.detail.error));
                            } else {
                                resolve(e.detail.result);
                            }
                        };
                        window.addEventListener('` + ResponseEventPrefix + `' + id, handler, { once: true });
                    });
                    window.chrome.webview.postMessage({
                        name: prop,
                        params: args,
                        id: id
                    });
                    return promise;
                }
            }
        })
    };
})();
`

// EvalWrapper wraps user script in the async shell that reports completion
// or failure back through the message channel under the reserved callback
// name, tagged with callID.
func EvalWrapper(script, callID string) string {
	return fmt.Sprintf(`
        (async function() {
            try {
                const result = await (async () => { %s })();
                window.chrome.webview.postMessage({
                    name: '%s',
                    params: {'success': true, 'result': result === undefined ? null : result},
                    id: '%s'
                });
            } catch (e) {
                window.chrome.webview.postMessage({
                    name: '%s',
                    params: {'success': false, 'error': e.toString()},
                    id: '%s'
                });
            }
        })();
    `, script, CallbackName, callID, CallbackName, callID)
}

// ResponseScript builds the script that settles the client-side promise for
// callID by dispatching its response event with the payload as detail.
func ResponseScript(callID string, payload Payload) string {
	return fmt.Sprintf(
		"window.dispatchEvent(new CustomEvent('%s%s', { detail: %s }));",
		ResponseEventPrefix, callID, MarshalPayload(payload),
	)
}
